package repository

import (
	"sort"
	"strings"
	"sync"
)

// DeviceToken is a registered push notification target.
type DeviceToken struct {
	Token     string
	Platform  string // "android" or "ios"
	CreatedAt int64
}

// TokenRepository keeps FCM device tokens in memory. Tokens are re-registered
// by the app on every launch, so losing them on restart is acceptable.
type TokenRepository struct {
	tokens map[string]*DeviceToken
	mu     sync.RWMutex
}

func NewTokenRepository() *TokenRepository {
	return &TokenRepository{
		tokens: make(map[string]*DeviceToken),
	}
}

// RegisterToken adds or refreshes a token. Unknown platforms are stored as "android".
func (r *TokenRepository) RegisterToken(token, platform string, timestamp int64) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	platform = strings.ToLower(strings.TrimSpace(platform))
	if platform != "ios" {
		platform = "android"
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.tokens[token]; ok {
		existing.Platform = platform
		return
	}
	r.tokens[token] = &DeviceToken{Token: token, Platform: platform, CreatedAt: timestamp}
}

func (r *TokenRepository) UnregisterToken(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, strings.TrimSpace(token))
}

// GetAllTokens returns the tokens oldest first, so multicast order is stable.
func (r *TokenRepository) GetAllTokens() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*DeviceToken, 0, len(r.tokens))
	for _, t := range r.tokens {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt != list[j].CreatedAt {
			return list[i].CreatedAt < list[j].CreatedAt
		}
		return list[i].Token < list[j].Token
	})
	tokens := make([]string, len(list))
	for i, t := range list {
		tokens[i] = t.Token
	}
	return tokens
}

func (r *TokenRepository) GetTokenCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}
