package worker

import (
	"net/http"
	"testing"
)

func TestContextWaitUntilOrder(t *testing.T) {
	wctx := &Context{}

	var order []int
	wctx.WaitUntil(func() { order = append(order, 1) })
	wctx.WaitUntil(func() { order = append(order, 2) })
	wctx.WaitUntil(func() { order = append(order, 3) })

	tasks := wctx.drain()
	if len(tasks) != 3 {
		t.Fatalf("Expected 3 tasks, got %d", len(tasks))
	}
	for _, task := range tasks {
		task()
	}

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("Tasks ran out of scheduling order: %v", order)
	}
}

func TestContextDrainEmpties(t *testing.T) {
	wctx := &Context{}
	wctx.WaitUntil(func() {})

	if got := len(wctx.drain()); got != 1 {
		t.Fatalf("Expected 1 task from first drain, got %d", got)
	}
	if got := len(wctx.drain()); got != 0 {
		t.Errorf("Expected 0 tasks from second drain, got %d", got)
	}
}

func TestContextWaitUntilNilTask(t *testing.T) {
	wctx := &Context{}
	wctx.WaitUntil(nil)

	if got := len(wctx.drain()); got != 0 {
		t.Errorf("Expected nil task to be ignored, got %d tasks", got)
	}
}

func TestEnvVars(t *testing.T) {
	env := NewEnv(&CaptureConsole{}).WithVar("REGION", "test-1")

	if value, ok := env.Var("REGION"); !ok || value != "test-1" {
		t.Errorf("Expected REGION=test-1, got %q (%v)", value, ok)
	}
	if _, ok := env.Var("MISSING"); ok {
		t.Error("Expected missing var lookup to fail")
	}
}

func TestResponseHelpers(t *testing.T) {
	resp := OK("Hello, World!")
	if resp.Status != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.Status)
	}
	if string(resp.Body) != "Hello, World!" {
		t.Errorf("Expected fixed body, got %q", resp.Body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Errorf("Unexpected content type %q", ct)
	}

	resp = Text(http.StatusTeapot, "short and stout")
	if resp.Status != http.StatusTeapot {
		t.Errorf("Expected status 418, got %d", resp.Status)
	}
}

func TestCaptureConsole(t *testing.T) {
	console := &CaptureConsole{}
	console.Log("first")
	console.Log("second")

	lines := console.Lines()
	if len(lines) != 2 || lines[0] != "first" || lines[1] != "second" {
		t.Errorf("Unexpected capture: %v", lines)
	}

	// Lines returns a copy.
	lines[0] = "mutated"
	if console.Lines()[0] != "first" {
		t.Error("Expected capture to be isolated from returned slice")
	}
}
