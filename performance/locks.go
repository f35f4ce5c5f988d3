package performance

import (
	"sync"

	"github.com/warp/timesheet-analytics/timesheet"
)

// keyedMutex hands out one mutex per derived-record key. Entries are reference
// counted and dropped when the last holder unlocks. The zero value is ready.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Lock blocks until key is free and returns its unlock function.
func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func projectKey(id timesheet.ProjectID) string { return "project:" + string(id) }
func taskKey(id timesheet.TaskID) string       { return "task:" + string(id) }

func employeeKey(user timesheet.UserID, week timesheet.Date) string {
	return "employee:" + string(user) + ":" + week.String()
}
