package mux

import (
	"net"
	"testing"
	"time"
)

func TestMultiplexerDispatchesByStreamID(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	mA := New[string](a, true)
	mB := New[string](b, false)
	defer mA.Close()
	defer mB.Close()

	s1 := mA.GetNewStream()
	s2 := mA.GetNewStream()

	r1 := mB.GetStreamForID(s1.ID)
	r2 := mB.GetStreamForID(s2.ID)

	if err := s1.Send("one"); err != nil {
		t.Fatal(err)
	}
	if err := s2.Send("two"); err != nil {
		t.Fatal(err)
	}

	select {
	case v := <-r1.In:
		if v != "one" {
			t.Fatalf("stream 1: got %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for stream 1")
	}
	select {
	case v := <-r2.In:
		if v != "two" {
			t.Fatalf("stream 2: got %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for stream 2")
	}
}
