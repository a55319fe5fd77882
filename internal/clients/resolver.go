package clients

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/meetscribe/backend/internal/models"
)

// UnknownClient is the sentinel the identifier returns when it cannot name a
// client. It must never become a client record.
const UnknownClient = "不明"

// identifyExcerptLen caps how much transcript is handed to the identifier.
const identifyExcerptLen = 1000

// Title brackets tried in order: Japanese corner brackets first, then ASCII.
var (
	jpBracketRe    = regexp.MustCompile(`【(.+?)】`)
	asciiBracketRe = regexp.MustCompile(`\[(.+?)\]`)
)

// consumerDomains are mail providers that never identify a company.
var consumerDomains = map[string]bool{
	"gmail.com":   true,
	"yahoo.co.jp": true,
	"outlook.com": true,
	"hotmail.com": true,
}

// ClientStore is the persistence surface the resolver needs.
type ClientStore interface {
	List(ctx context.Context, status string) ([]models.Client, error)
	GetOrCreateByName(ctx context.Context, name string) (*models.Client, error)
	AddMeetingID(ctx context.Context, id int64, meetingID string) error
}

// Identifier infers a client name from meeting context. Implementations
// return UnknownClient when nothing matches.
type Identifier interface {
	IdentifyClient(ctx context.Context, req IdentifyRequest) (string, error)
}

// IdentifyRequest is the context handed to the identifier.
type IdentifyRequest struct {
	Topic             string
	HostDomain        string
	TranscriptExcerpt string
	KnownClients      []string
}

// MatchContext carries everything the resolver may use for one recording.
type MatchContext struct {
	MeetingID         string
	Topic             string
	HostEmail         string
	TranscriptExcerpt string
}

// Resolver attributes a recording to a client by trying, in order: the
// learned meeting-id sets, a bracketed company name in the topic, the
// clients' title patterns and names, and finally inference from the
// transcript. Successful matches from the later tiers teach the earlier
// ones by writing the meeting id back to the client.
type Resolver struct {
	store      ClientStore
	identifier Identifier
	logger     *zap.Logger
}

// NewResolver creates a client resolver. identifier may be nil, which
// disables the inference tier.
func NewResolver(store ClientStore, identifier Identifier, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, identifier: identifier, logger: logger}
}

// Resolve returns the matched client, or nil when no tier matched.
func (r *Resolver) Resolve(ctx context.Context, mc MatchContext) (*models.Client, error) {
	known, err := r.store.List(ctx, "")
	if err != nil {
		return nil, err
	}

	if cl := matchByMeetingID(known, mc.MeetingID); cl != nil {
		r.logger.Info("client matched by learned meeting id",
			zap.String("client", cl.Name), zap.String("meeting_id", mc.MeetingID))
		return cl, nil
	}

	if name := extractBracketName(mc.Topic); name != "" {
		cl, err := r.store.GetOrCreateByName(ctx, name)
		if err != nil {
			return nil, err
		}
		r.learnMeetingID(ctx, cl, mc.MeetingID)
		r.logger.Info("client matched by bracketed topic",
			zap.String("client", cl.Name), zap.String("topic", mc.Topic))
		return cl, nil
	}

	if cl := matchByTitle(known, mc.Topic); cl != nil {
		r.learnMeetingID(ctx, cl, mc.MeetingID)
		r.logger.Info("client matched by title pattern",
			zap.String("client", cl.Name), zap.String("topic", mc.Topic))
		return cl, nil
	}

	if r.identifier != nil && strings.TrimSpace(mc.TranscriptExcerpt) != "" {
		cl, err := r.inferClient(ctx, known, mc)
		if err != nil {
			return nil, err
		}
		if cl != nil {
			r.learnMeetingID(ctx, cl, mc.MeetingID)
			r.logger.Info("client matched by inference", zap.String("client", cl.Name))
			return cl, nil
		}
	}

	r.logger.Info("no client matched", zap.String("topic", mc.Topic), zap.String("meeting_id", mc.MeetingID))
	return nil, nil
}

func matchByMeetingID(known []models.Client, meetingID string) *models.Client {
	if meetingID == "" {
		return nil
	}
	for i := range known {
		if known[i].HasMeetingID(meetingID) {
			return &known[i]
		}
	}
	return nil
}

// extractBracketName pulls a company name out of 【...】 or [...] in a topic.
func extractBracketName(topic string) string {
	for _, re := range []*regexp.Regexp{jpBracketRe, asciiBracketRe} {
		if m := re.FindStringSubmatch(topic); len(m) == 2 {
			if name := strings.TrimSpace(m[1]); name != "" {
				return name
			}
		}
	}
	return ""
}

func matchByTitle(known []models.Client, topic string) *models.Client {
	lower := strings.ToLower(topic)
	if lower == "" {
		return nil
	}
	for i := range known {
		for _, pat := range known[i].TitlePatterns {
			if pat != "" && strings.Contains(lower, strings.ToLower(pat)) {
				return &known[i]
			}
		}
		if strings.Contains(lower, strings.ToLower(known[i].Name)) {
			return &known[i]
		}
	}
	return nil
}

func (r *Resolver) inferClient(ctx context.Context, known []models.Client, mc MatchContext) (*models.Client, error) {
	names := make([]string, 0, len(known))
	for i := range known {
		names = append(names, known[i].Name)
	}
	excerpt := mc.TranscriptExcerpt
	if runes := []rune(excerpt); len(runes) > identifyExcerptLen {
		excerpt = string(runes[:identifyExcerptLen])
	}
	name, err := r.identifier.IdentifyClient(ctx, IdentifyRequest{
		Topic:             mc.Topic,
		HostDomain:        companyDomain(mc.HostEmail),
		TranscriptExcerpt: excerpt,
		KnownClients:      names,
	})
	if err != nil {
		// Inference is a best-effort last tier: failures degrade to a miss.
		r.logger.Warn("client inference failed", zap.Error(err))
		return nil, nil
	}
	name = strings.TrimSpace(name)
	if name == "" || name == UnknownClient {
		return nil, nil
	}
	for i := range known {
		if strings.EqualFold(known[i].Name, name) {
			return &known[i], nil
		}
	}
	// A confident non-sentinel name is a first contact: create the client so
	// the next meeting resolves on tier 1.
	cl, err := r.store.GetOrCreateByName(ctx, name)
	if err != nil {
		return nil, err
	}
	r.logger.Info("inference named a new client", zap.String("name", name))
	return cl, nil
}

// companyDomain returns the host's mail domain, or "" for consumer providers.
func companyDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	domain := strings.ToLower(email[at+1:])
	if consumerDomains[domain] {
		return ""
	}
	return domain
}

func (r *Resolver) learnMeetingID(ctx context.Context, cl *models.Client, meetingID string) {
	if meetingID == "" || cl.HasMeetingID(meetingID) {
		return
	}
	if err := r.store.AddMeetingID(ctx, cl.ID, meetingID); err != nil {
		r.logger.Warn("persist learned meeting id",
			zap.Int64("client_id", cl.ID), zap.String("meeting_id", meetingID), zap.Error(err))
	}
}
