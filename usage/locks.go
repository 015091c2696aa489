package usage

import "sync"

var userLocks sync.Map // user id -> *sync.Mutex

// lockUser serializes mutating usage operations of one user across trackers
func lockUser(userID string) func() {
	v, _ := userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
