package clients

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetscribe/backend/internal/models"
)

type fakeStore struct {
	clients     []models.Client
	nextID      int64
	learnedIDs  map[int64][]string
	createdName string
}

func newFakeStore(clients ...models.Client) *fakeStore {
	s := &fakeStore{clients: clients, nextID: 100, learnedIDs: map[int64][]string{}}
	for _, c := range clients {
		if c.ID >= s.nextID {
			s.nextID = c.ID + 1
		}
	}
	return s
}

func (s *fakeStore) List(ctx context.Context, status string) ([]models.Client, error) {
	return s.clients, nil
}

func (s *fakeStore) GetOrCreateByName(ctx context.Context, name string) (*models.Client, error) {
	for i := range s.clients {
		if s.clients[i].Name == name {
			return &s.clients[i], nil
		}
	}
	cl := models.Client{ID: s.nextID, Name: name, Status: models.ClientStatusActive, CreatedAt: time.Now()}
	s.nextID++
	s.clients = append(s.clients, cl)
	s.createdName = name
	return &s.clients[len(s.clients)-1], nil
}

func (s *fakeStore) AddMeetingID(ctx context.Context, id int64, meetingID string) error {
	s.learnedIDs[id] = append(s.learnedIDs[id], meetingID)
	return nil
}

type fakeIdentifier struct {
	name string
	err  error
	req  *IdentifyRequest
}

func (f *fakeIdentifier) IdentifyClient(ctx context.Context, req IdentifyRequest) (string, error) {
	f.req = &req
	return f.name, f.err
}

func TestResolveByLearnedMeetingID(t *testing.T) {
	store := newFakeStore(
		models.Client{ID: 1, Name: "Acme株式会社", MeetingIDs: []string{"999"}},
		models.Client{ID: 2, Name: "Beta Corp", TitlePatterns: []string{"acme"}},
	)
	r := NewResolver(store, nil, nil)

	// The learned id wins even though the topic would match another tier.
	cl, err := r.Resolve(context.Background(), MatchContext{MeetingID: "999", Topic: "acme weekly"})
	require.NoError(t, err)
	require.NotNil(t, cl)
	assert.Equal(t, int64(1), cl.ID)
	assert.Empty(t, store.learnedIDs, "tier 1 match must not write back")
}

func TestResolveByJapaneseBracketCreatesClient(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store, nil, nil)

	cl, err := r.Resolve(context.Background(), MatchContext{
		MeetingID: "42",
		Topic:     "【Acme株式会社】Weekly Sync",
	})
	require.NoError(t, err)
	require.NotNil(t, cl)
	assert.Equal(t, "Acme株式会社", cl.Name)
	assert.Equal(t, "Acme株式会社", store.createdName)
	assert.Equal(t, []string{"42"}, store.learnedIDs[cl.ID])
}

func TestResolveByAsciiBracket(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store, nil, nil)

	cl, err := r.Resolve(context.Background(), MatchContext{MeetingID: "7", Topic: "[Beta Corp] Kickoff"})
	require.NoError(t, err)
	require.NotNil(t, cl)
	assert.Equal(t, "Beta Corp", cl.Name)
}

func TestResolveByTitlePatternWritesBack(t *testing.T) {
	store := newFakeStore(
		models.Client{ID: 5, Name: "Gamma LLC", TitlePatterns: []string{"gamma定例"}},
	)
	r := NewResolver(store, nil, nil)

	cl, err := r.Resolve(context.Background(), MatchContext{MeetingID: "55", Topic: "Gamma定例 2024-03"})
	require.NoError(t, err)
	require.NotNil(t, cl)
	assert.Equal(t, int64(5), cl.ID)
	assert.Equal(t, []string{"55"}, store.learnedIDs[5])
}

func TestResolveByClientNameSubstring(t *testing.T) {
	store := newFakeStore(models.Client{ID: 8, Name: "Delta"})
	r := NewResolver(store, nil, nil)

	cl, err := r.Resolve(context.Background(), MatchContext{Topic: "delta sync"})
	require.NoError(t, err)
	require.NotNil(t, cl)
	assert.Equal(t, int64(8), cl.ID)
}

func TestResolveByInference(t *testing.T) {
	store := newFakeStore(models.Client{ID: 3, Name: "Epsilon Inc"})
	ident := &fakeIdentifier{name: "epsilon inc"}
	r := NewResolver(store, ident, nil)

	cl, err := r.Resolve(context.Background(), MatchContext{
		MeetingID:         "88",
		Topic:             "定例ミーティング",
		HostEmail:         "host@epsilon.co.jp",
		TranscriptExcerpt: "本日はエプシロン様との定例です。",
	})
	require.NoError(t, err)
	require.NotNil(t, cl)
	assert.Equal(t, int64(3), cl.ID)
	assert.Equal(t, []string{"88"}, store.learnedIDs[3])
	require.NotNil(t, ident.req)
	assert.Equal(t, "epsilon.co.jp", ident.req.HostDomain)
	assert.Equal(t, []string{"Epsilon Inc"}, ident.req.KnownClients)
}

func TestResolveInferenceSkippedWithoutTranscript(t *testing.T) {
	store := newFakeStore(models.Client{ID: 3, Name: "Epsilon Inc"})
	ident := &fakeIdentifier{name: "Epsilon Inc"}
	r := NewResolver(store, ident, nil)

	cl, err := r.Resolve(context.Background(), MatchContext{Topic: "定例ミーティング"})
	require.NoError(t, err)
	assert.Nil(t, cl)
	assert.Nil(t, ident.req, "identifier must not run without a transcript")
}

func TestResolveInferenceUnknownSentinel(t *testing.T) {
	store := newFakeStore(models.Client{ID: 3, Name: "Epsilon Inc"})
	ident := &fakeIdentifier{name: UnknownClient}
	r := NewResolver(store, ident, nil)

	cl, err := r.Resolve(context.Background(), MatchContext{Topic: "x", TranscriptExcerpt: "y"})
	require.NoError(t, err)
	assert.Nil(t, cl)
}

func TestResolveInferenceCreatesNewClient(t *testing.T) {
	store := newFakeStore()
	ident := &fakeIdentifier{name: "Brand New Co"}
	r := NewResolver(store, ident, nil)

	cl, err := r.Resolve(context.Background(), MatchContext{MeetingID: "31", Topic: "x", TranscriptExcerpt: "y"})
	require.NoError(t, err)
	require.NotNil(t, cl)
	assert.Equal(t, "Brand New Co", cl.Name)
	assert.Equal(t, "Brand New Co", store.createdName)
	assert.Equal(t, []string{"31"}, store.learnedIDs[cl.ID], "new client learns the meeting id")
}

func TestCompanyDomainFiltersConsumerProviders(t *testing.T) {
	assert.Equal(t, "", companyDomain("someone@gmail.com"))
	assert.Equal(t, "", companyDomain("someone@yahoo.co.jp"))
	assert.Equal(t, "", companyDomain("not-an-email"))
	assert.Equal(t, "acme.co.jp", companyDomain("host@acme.co.jp"))
}
