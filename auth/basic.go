package auth

import (
	"errors"
	"sync"
)

var (
	errBadCredentials = errors.New("bad username and/or password")
	errUnknownUser    = errors.New("unknown user")
	errRestricted     = errors.New("restricted")
)

// Basic authenticates clients against registered credentials and restricts
// subscriptions to Topic Filters that were explicitly allowed.
type Basic struct {
	users map[string]credential // k: clientId
	userL sync.RWMutex

	subs map[string]map[string]struct{} // topicF -> clientIds
	subL sync.RWMutex

	allowGuests bool
	guestL      sync.RWMutex
}

type credential struct {
	userName string
	password string
}

func NewBasic() *Basic {
	return &Basic{
		users: make(map[string]credential),
		subs:  make(map[string]map[string]struct{}),
	}
}

func (ba *Basic) RegisterUser(clientId, userName, password string) {
	ba.userL.Lock()
	ba.users[clientId] = credential{userName, password}
	ba.userL.Unlock()
}

func (ba *Basic) RemoveUser(clientId string) {
	ba.userL.Lock()
	delete(ba.users, clientId)
	ba.userL.Unlock()
}

// Allow user to subscribe to a restricted Topic Filter.
// The Topic Filter becomes restricted if it is called with this function.
func (ba *Basic) AllowSubscription(topicFilter, clientId string) {
	ba.subL.Lock()

	clients, ok := ba.subs[topicFilter]
	if !ok {
		clients = make(map[string]struct{})
		ba.subs[topicFilter] = clients
	}

	clients[clientId] = struct{}{}
	ba.subL.Unlock()
}

// Allow unregistered user access. (Users without username/password)
// Will not allow guests to join with clientIds that are registered, regardless.
func (ba *Basic) ToggleGuestAccess(allow bool) {
	ba.guestL.Lock()
	ba.allowGuests = allow
	ba.guestL.Unlock()
}

// Auth

func (ba *Basic) AuthUser(clientId, username, password string) error {
	ba.userL.RLock()
	user, ok := ba.users[clientId]
	ba.userL.RUnlock()

	if ok {
		if username != user.userName || password != user.password {
			return errBadCredentials
		}
		return nil
	}

	ba.guestL.RLock()
	guests := ba.allowGuests
	ba.guestL.RUnlock()

	if !guests || username != "" || password != "" {
		return errUnknownUser
	}
	return nil
}

func (ba *Basic) AuthSubscription(clientId, topicFilter string) error {
	ba.subL.RLock()
	clients, ok := ba.subs[topicFilter]
	if !ok {
		ba.subL.RUnlock()
		return nil
	}

	_, ok = clients[clientId]
	ba.subL.RUnlock()

	if !ok {
		return errRestricted
	}

	return nil
}
