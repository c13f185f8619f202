package reveal

import (
	"math/rand"
	"sync"
	"testing"
)

func TestToggleScenario(t *testing.T) {
	c := New()

	c.Toggle("s1")
	if id, ok := c.Current(); !ok || id != "s1" {
		t.Fatalf("after toggle(s1) current = %q, %v", id, ok)
	}

	ch := c.Toggle("s2")
	if ch.Prev != "s1" || ch.Next != "s2" {
		t.Errorf("change = %+v", ch)
	}
	if id, _ := c.Current(); id != "s2" {
		t.Fatalf("after toggle(s2) current = %q", id)
	}

	c.Toggle("s2")
	if id, ok := c.Current(); ok {
		t.Fatalf("after second toggle(s2) current = %q, want none", id)
	}
}

func TestToggleInvolution(t *testing.T) {
	for _, id := range []string{"a", "s-42", "unknown"} {
		c := New()
		c.Toggle(id)
		c.Toggle(id)
		if cur, ok := c.Current(); ok {
			t.Errorf("toggle(%q) twice left %q revealed", id, cur)
		}
	}
}

func TestExclusivity(t *testing.T) {
	c := New()
	ids := []string{"s1", "s2", "s3", "s4"}
	r := rand.New(rand.NewSource(1))

	// revealed tracks what subscribers believe is visible.
	revealed := map[string]bool{}
	c.Subscribe(func(ch Change) {
		if ch.Prev != "" {
			delete(revealed, ch.Prev)
		}
		if ch.Next != "" {
			revealed[ch.Next] = true
		}
		if len(revealed) > 1 {
			t.Fatalf("more than one id revealed: %v", revealed)
		}
	})

	for i := 0; i < 500; i++ {
		c.Toggle(ids[r.Intn(len(ids))])
	}
}

func TestSubscribeAndCancel(t *testing.T) {
	c := New()
	var got []Change
	cancel := c.Subscribe(func(ch Change) { got = append(got, ch) })

	c.Toggle("s1")
	c.Clear()
	c.Clear() // no-op, no notification
	cancel()
	c.Toggle("s2")

	if len(got) != 2 {
		t.Fatalf("notifications = %+v", got)
	}
	if got[0].Seq >= got[1].Seq {
		t.Errorf("sequence not increasing: %+v", got)
	}
}

func TestConcurrentToggles(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Toggle([]string{"a", "b"}[(i+j)%2])
			}
		}(i)
	}
	wg.Wait()
	if id, ok := c.Current(); ok && id != "a" && id != "b" {
		t.Errorf("unexpected current %q", id)
	}
}
