package gpio

import "sync"

// Write is one recorded call to FakeDriver.Write.
type Write struct {
	Pin  int
	High bool
}

// FakeDriver is an in-memory Driver for tests and hardware-less runs.
type FakeDriver struct {
	mu     sync.Mutex
	Levels map[int]bool
	Writes []Write
	// Fail, when set for a pin, is returned by Write and Read on that pin.
	Fail   map[int]error
	Closed bool
}

func NewFakeDriver() *FakeDriver {
	return &FakeDriver{Levels: make(map[int]bool), Fail: make(map[int]error)}
}

func (f *FakeDriver) Write(pin int, high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail[pin]; err != nil {
		return err
	}
	f.Levels[pin] = high
	f.Writes = append(f.Writes, Write{Pin: pin, High: high})
	return nil
}

func (f *FakeDriver) Read(pin int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail[pin]; err != nil {
		return false, err
	}
	return f.Levels[pin], nil
}

func (f *FakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Level returns the last written level of pin.
func (f *FakeDriver) Level(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Levels[pin]
}

// WritesTo returns every recorded write to pin, in order.
func (f *FakeDriver) WritesTo(pin int) []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []bool
	for _, w := range f.Writes {
		if w.Pin == pin {
			out = append(out, w.High)
		}
	}
	return out
}

// Reset clears the write log, keeping current levels.
func (f *FakeDriver) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Writes = nil
}
