package update

import (
	"path/filepath"
	"testing"
	"time"
)

func TestWriteStateAtomicAndReadState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update_state.json")
	st := State{
		Status:              StatusUpdated,
		CurrentVersion:      "1.2.0",
		PreviousVersion:     "1.1.0",
		Channel:             ChannelStable,
		LastUpdate:          time.Now().Truncate(time.Second),
		ConsecutiveFailures: 0,
	}

	if err := writeStateAtomic(path, st); err != nil {
		t.Fatalf("writeStateAtomic() error = %v", err)
	}

	got, err := ReadState(path)
	if err != nil {
		t.Fatalf("ReadState() error = %v", err)
	}
	if got.Status != st.Status || got.CurrentVersion != st.CurrentVersion || got.PreviousVersion != st.PreviousVersion {
		t.Errorf("ReadState() = %+v, want %+v", got, st)
	}
}

func TestReadStateMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	st, err := ReadState(path)
	if err != nil {
		t.Fatalf("ReadState() error = %v", err)
	}
	if st.Channel != ChannelStable {
		t.Errorf("ReadState() for missing file = %+v, want default stable channel", st)
	}
}

func TestWriteStateAtomicOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update_state.json")
	if err := writeStateAtomic(path, State{Status: StatusCheckFailed, CurrentVersion: "1.0.0"}); err != nil {
		t.Fatalf("writeStateAtomic() first write error = %v", err)
	}
	if err := writeStateAtomic(path, State{Status: StatusUpToDate, CurrentVersion: "1.0.0"}); err != nil {
		t.Fatalf("writeStateAtomic() second write error = %v", err)
	}

	got, err := ReadState(path)
	if err != nil {
		t.Fatalf("ReadState() error = %v", err)
	}
	if got.Status != StatusUpToDate {
		t.Errorf("Status = %s, want %s after overwrite", got.Status, StatusUpToDate)
	}
}
