package view

import (
	"context"
	"testing"
	"time"

	"hausdesk/pkg/domain"
	"hausdesk/pkg/store"
)

func newTestMirror(t *testing.T) (*Mirror, *store.Gateway) {
	t.Helper()
	gateway := store.NewGateway(store.NewMemoryStore(), store.NewMemoryNotifier())
	m := NewMirror(context.Background(), gateway, domain.Session{ID: "owner-1", Email: "maria@sonnenhof.example"})
	t.Cleanup(m.Close)
	return m, gateway
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestMirrorBecomesReady(t *testing.T) {
	m, _ := newTestMirror(t)
	waitFor(t, m.Ready, "mirror never received the initial snapshot")
	if props := m.Properties(); len(props) != 0 {
		t.Fatalf("expected empty initial snapshot, got %d", len(props))
	}
}

func TestMirrorReflectsMutations(t *testing.T) {
	m, _ := newTestMirror(t)
	waitFor(t, m.Ready, "mirror never became ready")

	if _, err := m.AddProperty(context.Background(), "Sonnenhof", "Bergstraße 12"); err != nil {
		t.Fatalf("add property: %v", err)
	}
	waitFor(t, func() bool { return len(m.Properties()) == 1 }, "created property never reached the mirror")

	props := m.Properties()
	if props[0].Name != "Sonnenhof" {
		t.Fatalf("unexpected property: %+v", props[0])
	}

	if err := m.DeleteProperty(context.Background(), props[0].ID); err != nil {
		t.Fatalf("delete property: %v", err)
	}
	waitFor(t, func() bool { return len(m.Properties()) == 0 }, "deleted property never left the mirror")
}

func TestMirrorSelectSplicesTasks(t *testing.T) {
	m, _ := newTestMirror(t)
	waitFor(t, m.Ready, "mirror never became ready")

	propID, err := m.AddProperty(context.Background(), "Sonnenhof", "Bergstraße 12")
	if err != nil {
		t.Fatalf("add property: %v", err)
	}
	waitFor(t, func() bool { return len(m.Properties()) == 1 }, "property never arrived")

	m.Select(propID)
	if _, err := m.AddTask(context.Background(), propID, store.NewTask{
		Title:    "Heizung warten",
		Interval: domain.IntervalYearly,
		NextDue:  time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("add task: %v", err)
	}

	waitFor(t, func() bool {
		_, tasks := m.Selected()
		return len(tasks) == 1
	}, "task never reached the mirror")

	props := m.Properties()
	if len(props) != 1 || len(props[0].Tasks) != 1 || props[0].Tasks[0].Title != "Heizung warten" {
		t.Fatalf("tasks not spliced into snapshot: %+v", props)
	}
}

func TestMirrorSelectSwitchDropsStaleTasks(t *testing.T) {
	m, _ := newTestMirror(t)
	waitFor(t, m.Ready, "mirror never became ready")

	ctx := context.Background()
	first, err := m.AddProperty(ctx, "Sonnenhof", "Bergstraße 12")
	if err != nil {
		t.Fatalf("add property: %v", err)
	}
	second, err := m.AddProperty(ctx, "Lindenhof", "Hauptstraße 1")
	if err != nil {
		t.Fatalf("add property: %v", err)
	}

	m.Select(first)
	if _, err := m.AddTask(ctx, first, store.NewTask{
		Title:    "Rauchmelder prüfen",
		Interval: domain.IntervalMonthly,
		NextDue:  time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("add task: %v", err)
	}
	waitFor(t, func() bool {
		_, tasks := m.Selected()
		return len(tasks) == 1
	}, "first property's task never arrived")

	m.Select(second)
	selected, tasks := m.Selected()
	if selected != second {
		t.Fatalf("selection not switched: %q", selected)
	}
	if len(tasks) != 0 {
		t.Fatalf("stale tasks survived the switch: %+v", tasks)
	}

	// Mutating the no-longer-selected property must not leak into the
	// mirror's task snapshot.
	if _, err := m.AddTask(ctx, first, store.NewTask{
		Title:    "Dachrinne reinigen",
		Interval: domain.IntervalQuarterly,
		NextDue:  time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("add task: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if _, tasks := m.Selected(); len(tasks) != 0 {
		t.Fatalf("unselected property's tasks leaked in: %+v", tasks)
	}
}

func TestMirrorChangesTickOnUpdates(t *testing.T) {
	m, _ := newTestMirror(t)

	// The initial property snapshot produces the first tick.
	select {
	case <-m.Changes():
	case <-time.After(3 * time.Second):
		t.Fatal("no tick for the initial snapshot")
	}

	if _, err := m.AddProperty(context.Background(), "Sonnenhof", "Bergstraße 12"); err != nil {
		t.Fatalf("add property: %v", err)
	}
	select {
	case <-m.Changes():
	case <-time.After(3 * time.Second):
		t.Fatal("no tick after a mutation")
	}
	if len(m.Properties()) != 1 {
		t.Fatalf("tick arrived before the state moved")
	}
}

func TestMirrorSelectEmptyClearsSubscription(t *testing.T) {
	m, _ := newTestMirror(t)
	waitFor(t, m.Ready, "mirror never became ready")

	propID, err := m.AddProperty(context.Background(), "Sonnenhof", "Bergstraße 12")
	if err != nil {
		t.Fatalf("add property: %v", err)
	}
	m.Select(propID)
	m.Select("")

	selected, tasks := m.Selected()
	if selected != "" || len(tasks) != 0 {
		t.Fatalf("selection not cleared: %q %+v", selected, tasks)
	}
}
