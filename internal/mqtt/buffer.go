package mqtt

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a bounded FIFO holding messages published while disconnected.
// When full the oldest message is dropped; touch events are most useful
// when recent.
// Not safe for concurrent use; callers synchronize.
type outbox struct {
	buf     []bufferedMsg
	head    int // oldest message
	count   int
	dropped int // messages discarded since creation
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{buf: make([]bufferedMsg, capacity)}
}

// push appends msg and reports whether an older message was dropped for it.
func (o *outbox) push(msg bufferedMsg) bool {
	tail := (o.head + o.count) % len(o.buf)
	if o.count == len(o.buf) {
		o.buf[o.head] = msg
		o.head = (o.head + 1) % len(o.buf)
		o.dropped++
		return true
	}
	o.buf[tail] = msg
	o.count++
	return false
}

// flush hands queued messages, oldest first, to send until it fails. The
// failed message and everything after it stay queued.
func (o *outbox) flush(send func(bufferedMsg) error) (int, error) {
	sent := 0
	for o.count > 0 {
		if err := send(o.buf[o.head]); err != nil {
			return sent, err
		}
		o.buf[o.head] = bufferedMsg{}
		o.head = (o.head + 1) % len(o.buf)
		o.count--
		sent++
	}
	o.head = 0
	return sent, nil
}

func (o *outbox) len() int {
	return o.count
}
