package fcm

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"income-screener/internal/domain"
	"income-screener/internal/infrastructure/logger"
)

type memTokens struct {
	tokens map[string]string
}

func (m *memTokens) RegisterToken(token, platform string, _ int64) { m.tokens[token] = platform }
func (m *memTokens) UnregisterToken(token string) { delete(m.tokens, token) }
func (m *memTokens) GetTokenCount() int { return len(m.tokens) }

func (m *memTokens) GetAllTokens() []string {
	out := make([]string, 0, len(m.tokens))
	for t := range m.tokens {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

type fakeMulticaster struct {
	messages []*messaging.MulticastMessage
	respond  func(tokens []string) *messaging.BatchResponse
	err      error
}

func (f *fakeMulticaster) SendEachForMulticast(_ context.Context, m *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	f.messages = append(f.messages, m)
	if f.err != nil {
		return nil, f.err
	}
	if f.respond != nil {
		return f.respond(m.Tokens), nil
	}
	resp := &messaging.BatchResponse{SuccessCount: len(m.Tokens)}
	for range m.Tokens {
		resp.Responses = append(resp.Responses, &messaging.SendResponse{Success: true})
	}
	return resp, nil
}

func testPick() domain.Pick {
	return domain.Pick{
		ID:               "p1",
		Symbol:           "AAPL",
		Strategy:         domain.StrategyCoveredCall,
		Strike:           200,
		Expiry:           time.Date(2024, 7, 19, 0, 0, 0, 0, time.UTC),
		DTE:              35,
		Premium:          2.15,
		AnnualizedReturn: 0.2134,
		Score:            0.7812,
	}
}

func TestPickNotification(t *testing.T) {
	title, body := PickNotification(testPick())
	assert.Equal(t, "CC AAPL CALL 200.00 2024-07-19", title)
	assert.Equal(t, "Score 0.78 | $2.15 premium | 21.3% annualized | 35 DTE", body)
}

func TestSendPick(t *testing.T) {
	tokens := &memTokens{tokens: map[string]string{"a": "android", "b": "ios"}}
	mc := &fakeMulticaster{}
	c := &Client{client: mc, tokens: tokens, log: logger.Nop()}

	require.True(t, c.Enabled())
	require.NoError(t, c.SendPick(context.Background(), testPick()))

	require.Len(t, mc.messages, 1)
	msg := mc.messages[0]
	assert.Equal(t, []string{"a", "b"}, msg.Tokens)
	assert.Equal(t, "AAPL", msg.Data["symbol"])
	assert.Equal(t, "0.781", msg.Data["score"])
	assert.Equal(t, channelID, msg.Android.Notification.ChannelID)
}

func TestSendDigest_NoDevicesIsNoop(t *testing.T) {
	mc := &fakeMulticaster{}
	c := &Client{client: mc, tokens: &memTokens{tokens: map[string]string{}}, log: logger.Nop()}

	require.NoError(t, c.SendDigest(context.Background(), domain.RunSummary{}, []domain.Pick{testPick()}))
	assert.Empty(t, mc.messages)
}

func TestSendPick_AllFailed(t *testing.T) {
	mc := &fakeMulticaster{respond: func(tokens []string) *messaging.BatchResponse {
		resp := &messaging.BatchResponse{FailureCount: len(tokens)}
		for range tokens {
			resp.Responses = append(resp.Responses, &messaging.SendResponse{Error: errors.New("quota exceeded")})
		}
		return resp
	}}
	tokens := &memTokens{tokens: map[string]string{"a": "android"}}
	c := &Client{client: mc, tokens: tokens, log: logger.Nop()}

	err := c.SendPick(context.Background(), testPick())
	assert.ErrorContains(t, err, "all 1 deliveries failed")
	assert.Equal(t, 1, tokens.GetTokenCount(), "only unregistered tokens are pruned")
}

func TestDisabledClient(t *testing.T) {
	c := &Client{tokens: &memTokens{tokens: map[string]string{"a": "android"}}, log: logger.Nop()}
	assert.False(t, c.Enabled())
	assert.Error(t, c.SendPick(context.Background(), testPick()))
	assert.Equal(t, "fcm", c.Name())
}

func TestSendTest(t *testing.T) {
	tokens := &memTokens{tokens: map[string]string{"a": "android"}}
	mc := &fakeMulticaster{}
	c := &Client{client: mc, tokens: tokens, log: logger.Nop()}

	require.NoError(t, c.SendTest(context.Background()))
	require.Len(t, mc.messages, 1)
	assert.Equal(t, "test", mc.messages[0].Data["type"])
	assert.Equal(t, []string{"a"}, mc.messages[0].Tokens)

	disabled := &Client{tokens: tokens, log: logger.Nop()}
	assert.Error(t, disabled.SendTest(context.Background()))
}
