package room

import (
	"sync"
	"testing"
)

func TestRoomMembership(t *testing.T) {
	r := NewRoom("lobby")

	a := make(chan []byte, 4)
	b := make(chan []byte, 4)
	if n := r.Add("peer-a", a); n != 1 {
		t.Errorf("Expected size 1, got %d", n)
	}
	if n := r.Add("peer-b", b); n != 2 {
		t.Errorf("Expected size 2, got %d", n)
	}

	peers := r.Peers()
	if len(peers) != 2 || peers[0] != "peer-a" || peers[1] != "peer-b" {
		t.Errorf("Expected join order [peer-a peer-b], got %v", peers)
	}

	if !r.Remove("peer-a") {
		t.Error("Remove should report a present member")
	}
	if r.Remove("peer-a") {
		t.Error("Second remove should report absence")
	}
	if _, ok := <-a; ok {
		t.Error("Removed member channel should be closed")
	}
	if r.Len() != 1 {
		t.Errorf("Expected 1 member, got %d", r.Len())
	}
}

func TestRoomBroadcastIncludesEveryMember(t *testing.T) {
	r := NewRoom("lobby")
	a := make(chan []byte, 4)
	b := make(chan []byte, 4)
	r.Add("peer-a", a)
	r.Add("peer-b", b)

	if dropped := r.Broadcast([]byte("hello")); len(dropped) != 0 {
		t.Errorf("Nobody should be dropped, got %v", dropped)
	}

	for name, ch := range map[string]chan []byte{"peer-a": a, "peer-b": b} {
		select {
		case data := <-ch:
			if string(data) != "hello" {
				t.Errorf("%s: unexpected data %q", name, data)
			}
		default:
			t.Errorf("%s: expected a delivery", name)
		}
	}
	if r.Messages() != 1 {
		t.Errorf("Expected 1 message counted, got %d", r.Messages())
	}
}

func TestRoomDropsSlowMember(t *testing.T) {
	r := NewRoom("lobby")
	fast := make(chan []byte, 4)
	slow := make(chan []byte)
	r.Add("fast", fast)
	r.Add("slow", slow)

	dropped := r.Broadcast([]byte("x"))
	if len(dropped) != 1 || dropped[0] != "slow" {
		t.Fatalf("Expected slow member dropped, got %v", dropped)
	}
	if _, ok := <-slow; ok {
		t.Error("Dropped member channel should be closed")
	}
	if r.Len() != 1 {
		t.Errorf("Expected 1 member left, got %d", r.Len())
	}
}

func TestRoomRejoinReplacesChannel(t *testing.T) {
	r := NewRoom("lobby")
	first := make(chan []byte, 1)
	second := make(chan []byte, 1)

	r.Add("peer", first)
	if n := r.Add("peer", second); n != 1 {
		t.Errorf("Expected size 1 after rejoin, got %d", n)
	}
	if _, ok := <-first; ok {
		t.Error("Replaced channel should be closed")
	}
	if len(r.Peers()) != 1 {
		t.Errorf("Expected one entry in join order, got %v", r.Peers())
	}
}

func TestRoomConcurrency(t *testing.T) {
	r := NewRoom("lobby")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Add(string(rune('a'+i%26))+string(rune('0'+i/26)), make(chan []byte, 1))
		}(i)
	}
	wg.Wait()

	if r.Len() != 100 {
		t.Errorf("Expected 100 members, got %d", r.Len())
	}
}
