package audio

// Drain reads from ch until it is closed, discarding all values. Use it to
// release provider goroutines blocked on a channel nobody reads anymore.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
