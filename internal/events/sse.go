package events

// SubscribeToChannel forwards events of type T into ch for select-loop
// consumers such as the SSE handler. Events are dropped when ch is full so a
// slow client never blocks publishers.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return On(bus, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
