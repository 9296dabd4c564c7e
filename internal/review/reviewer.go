// Package review implements the Tier-2 pass: the top matches for a
// profile are batched into a single LLM request and the returned
// PASS/FAIL verdicts with rationales are written back. Tier-2 columns are
// the only thing this package writes; a run-wide LLM failure writes
// nothing.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"tendermatch/internal/config"
	"tendermatch/internal/metrics"
	"tendermatch/internal/model"
	"tendermatch/internal/store"
)

// Store is the persistence surface the reviewer needs.
type Store interface {
	GetProfile(ctx context.Context, orgID uuid.UUID) (*model.ServiceProfile, error)
	TopMatches(ctx context.Context, orgID uuid.UUID, k int) ([]model.NoticeMatch, error)
	NoticesByOCIDs(ctx context.Context, ocids []string) (map[string]*model.Notice, error)
	SetDeepReviews(ctx context.Context, orgID uuid.UUID, reviews map[string]store.DeepReview) error
}

// Reviewer drives the Tier-2 batch review.
type Reviewer struct {
	store       Store
	api         *openai.Client
	model       string
	maxAttempts int
	logger      *zap.Logger
}

// New builds a reviewer from config.
func New(st Store, cfg config.LLMConfig, logger *zap.Logger) *Reviewer {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Reviewer{
		store:       st,
		api:         openai.NewClientWithConfig(apiCfg),
		model:       cfg.Model,
		maxAttempts: maxAttempts,
		logger:      logger.Named("review"),
	}
}

// Review selects a profile's top-K matches by score, asks the LLM for a
// verdict per tender, and persists the verdicts in one transaction.
// Malformed or missing entries default to FAIL with a diagnostic
// rationale; a failed LLM call leaves the database untouched.
func (r *Reviewer) Review(ctx context.Context, orgID uuid.UUID, topK int) error {
	if topK <= 0 {
		topK = 10
	}
	profile, err := r.store.GetProfile(ctx, orgID)
	if err != nil {
		return err
	}
	matches, err := r.store.TopMatches(ctx, orgID, topK)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		r.logger.Info("no matches to review", zap.String("org", orgID.String()))
		return nil
	}

	ocids := make([]string, 0, len(matches))
	for i := range matches {
		ocids = append(ocids, matches[i].OCID)
	}
	notices, err := r.store.NoticesByOCIDs(ctx, ocids)
	if err != nil {
		return err
	}

	prompt := buildPrompt(profile, ocids, notices)
	content, err := r.complete(ctx, prompt)
	if err != nil {
		return fmt.Errorf("tier-2 review for %s: %w", orgID, err)
	}

	reviews := ParseVerdicts(content, ocids)
	if err := r.store.SetDeepReviews(ctx, orgID, reviews); err != nil {
		return err
	}
	for _, review := range reviews {
		metrics.Tier2Reviews.WithLabelValues(string(review.Verdict)).Inc()
	}
	r.logger.Info("tier-2 review complete",
		zap.String("org", orgID.String()),
		zap.Int("reviewed", len(reviews)))
	return nil
}

// complete calls the chat provider requiring a JSON object response,
// retrying transient failures.
func (r *Reviewer) complete(ctx context.Context, prompt string) (string, error) {
	backoff := retry.WithJitter(time.Second,
		retry.WithMaxRetries(uint64(r.maxAttempts-1), retry.NewExponential(2*time.Second)))

	var content string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := r.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: r.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Temperature: 0.1,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var apiErr *openai.APIError
			if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 429 && apiErr.HTTPStatusCode < 500 {
				return err
			}
			r.logger.Warn("chat request failed, retrying", zap.Error(err))
			return retry.RetryableError(err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("chat provider returned no choices")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	return content, err
}

// verdictEntry is the per-tender shape expected from the LLM.
type verdictEntry struct {
	Verdict   string `json:"verdict"`
	Rationale string `json:"rationale"`
}

// ParseVerdicts decodes the LLM's OCID-keyed verdict map. Every expected
// OCID gets an entry: unparseable responses, missing keys and unknown
// verdict strings all default to FAIL with a diagnostic rationale.
func ParseVerdicts(content string, expected []string) map[string]store.DeepReview {
	out := make(map[string]store.DeepReview, len(expected))

	var decoded map[string]verdictEntry
	decodeErr := json.Unmarshal([]byte(content), &decoded)

	for _, ocid := range expected {
		if decodeErr != nil {
			out[ocid] = store.DeepReview{
				Verdict:   model.DeepFail,
				Rationale: "Reviewer response was not valid JSON; defaulted to FAIL.",
			}
			continue
		}
		entry, ok := decoded[ocid]
		if !ok {
			out[ocid] = store.DeepReview{
				Verdict:   model.DeepFail,
				Rationale: "No verdict returned by reviewer; defaulted to FAIL.",
			}
			continue
		}
		switch strings.ToUpper(strings.TrimSpace(entry.Verdict)) {
		case string(model.DeepPass):
			out[ocid] = store.DeepReview{Verdict: model.DeepPass, Rationale: entry.Rationale}
		case string(model.DeepFail):
			out[ocid] = store.DeepReview{Verdict: model.DeepFail, Rationale: entry.Rationale}
		default:
			out[ocid] = store.DeepReview{
				Verdict:   model.DeepFail,
				Rationale: fmt.Sprintf("Unrecognised verdict %q; defaulted to FAIL.", entry.Verdict),
			}
		}
	}
	return out
}

// buildPrompt renders the charity evidence and the candidate tenders into
// a single batched review request.
func buildPrompt(profile *model.ServiceProfile, ocids []string, notices map[string]*model.Notice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert procurement advisor for UK charities.\n")
	fmt.Fprintf(&b, "Analyse which of the following %d tenders are the best fit for this charity to bid for.\n\n", len(ocids))
	b.WriteString("CHARITY PROFILE:\n")
	b.WriteString(charitySummary(profile))
	b.WriteString("\n")

	for i, ocid := range ocids {
		fmt.Fprintf(&b, "\n--- TENDER #%d (OCID: %s) ---\n", i+1, ocid)
		if notice, ok := notices[ocid]; ok {
			b.WriteString(tenderSummary(notice))
		} else {
			b.WriteString("(notice details unavailable)\n")
		}
	}

	b.WriteString(`
For EACH tender, provide a PASS or FAIL verdict and a one-sentence rationale.
A "PASS" means the charity has strong evidence of being able to deliver the service and it is a good strategic fit.
A "FAIL" means there is a significant mismatch in domain, scale, or requirements.

Respond ONLY with a JSON object where keys are OCIDs and values are:
{"verdict": "PASS" | "FAIL", "rationale": "Direct explanation of why it passed or failed"}
`)
	return b.String()
}

func charitySummary(p *model.ServiceProfile) string {
	var lines []string
	lines = append(lines, "Name: "+p.Name)
	if p.LatestIncome > 0 {
		lines = append(lines, fmt.Sprintf("Annual Income: £%d", p.LatestIncome))
	} else {
		lines = append(lines, "Annual Income: Not reported")
	}
	if p.Mission != "" {
		lines = append(lines, "Mission/Objects: "+truncate(p.Mission, 500))
	}
	if p.ProgramsServices != "" {
		lines = append(lines, "Activities: "+truncate(p.ProgramsServices, 500))
	}
	if p.TargetPopulation != "" {
		lines = append(lines, "Target Population: "+p.TargetPopulation)
	}
	if len(p.BeneficiaryGroups) > 0 {
		lines = append(lines, "Beneficiary Groups: "+strings.Join(p.BeneficiaryGroups, ", "))
	}
	if len(p.ServiceRegions) > 0 {
		lines = append(lines, "Operating Regions: "+strings.Join(p.ServiceRegions, ", "))
	}
	if len(p.InferredCPVCodes) > 0 {
		lines = append(lines, "Relevant CPV Codes: "+strings.Join(p.InferredCPVCodes, ", "))
	}
	if len(p.UKCATThemes) > 0 {
		lines = append(lines, "Charity Classifications: "+strings.Join(p.UKCATThemes, ", "))
	}
	return strings.Join(lines, "\n")
}

func tenderSummary(n *model.Notice) string {
	var lines []string
	lines = append(lines, "Title: "+n.Title)
	if n.ValueAmount != nil {
		lines = append(lines, fmt.Sprintf("Estimated Value: £%s %s", n.ValueAmount.StringFixed(0), n.ValueCurrency))
	}
	if n.Description != "" {
		lines = append(lines, "Description: "+truncate(n.Description, 800))
	}
	if len(n.CPVCodes) > 0 {
		lines = append(lines, "CPV Codes: "+strings.Join(n.CPVCodes, ", "))
	}
	if n.DeadlineDate != nil {
		lines = append(lines, "Deadline: "+n.DeadlineDate.Format("2006-01-02"))
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
