package identity

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu    sync.RWMutex
	users map[string]VerifiedUser
}

// NewMemoryRepository builds an in-memory verified user store for testing.
func NewMemoryRepository() Repository {
	return &memoryRepository{users: make(map[string]VerifiedUser)}
}

func pairKey(deviceID, instrumentKey string) string {
	return deviceID + "\x00" + instrumentKey
}

func (r *memoryRepository) Find(_ context.Context, deviceID, instrumentKey string) (VerifiedUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[pairKey(deviceID, instrumentKey)]
	if !ok {
		return VerifiedUser{}, ErrNotFound
	}
	if user.Credential != nil {
		cred := *user.Credential
		user.Credential = &cred
	}
	return user, nil
}

func (r *memoryRepository) Upsert(_ context.Context, user VerifiedUser) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey(user.DeviceID, user.InstrumentKey)
	existing, ok := r.users[key]
	if !ok {
		user.FirstTime = true
		user.Linkage = LinkageUnlinked
		user.Credential = nil
		if linked, found := r.deviceLink(user.DeviceID); found {
			cred := *linked.Credential
			user.Linkage = LinkageLinked
			user.Credential = &cred
		}
		r.users[key] = user
		return true, nil
	}
	existing.InstrumentMask = user.InstrumentMask
	existing.Holder = user.Holder
	existing.ProofToken = user.ProofToken
	existing.VerifiedAt = user.VerifiedAt
	existing.FirstTime = false
	r.users[key] = existing
	return false, nil
}

func (r *memoryRepository) SetLinkage(_ context.Context, deviceID string, linkage Linkage, cred Credential) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for key, user := range r.users {
		if user.DeviceID != deviceID {
			continue
		}
		c := cred
		user.Linkage = linkage
		user.Credential = &c
		r.users[key] = user
		n++
	}
	return n, nil
}

func (r *memoryRepository) IsDeviceLinked(_ context.Context, deviceID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, found := r.deviceLink(deviceID)
	return found, nil
}

// deviceLink returns the most recently linked record of the device. Caller holds mu.
func (r *memoryRepository) deviceLink(deviceID string) (VerifiedUser, bool) {
	var (
		best  VerifiedUser
		found bool
	)
	for _, user := range r.users {
		if user.DeviceID != deviceID || !user.IsLinked() {
			continue
		}
		if !found || user.Credential.LinkedAt.After(best.Credential.LinkedAt) {
			best, found = user, true
		}
	}
	return best, found
}

func (r *memoryRepository) PurgeLinkage(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for key, user := range r.users {
		if user.Linkage == LinkageUnlinked {
			continue
		}
		user.Linkage = LinkageUnlinked
		user.Credential = nil
		r.users[key] = user
		n++
	}
	return n, nil
}
