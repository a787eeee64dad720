package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/lumenvc/dossier/helper"
	"github.com/lumenvc/dossier/model"
)

var (
	// "Sarah Chen (sarah@novabuild.com)" style person mentions
	personWithEmailPattern = regexp.MustCompile(`([A-Z][\p{L}'-]+(?: [A-Z][\p{L}'-]+)+)\s*\(([\w.+-]+@[\w-]+(?:\.[\w-]+)+)\)`)
	emailPattern           = regexp.MustCompile(`[\w.+-]+@[\w-]+(?:\.[\w-]+)+`)
	linkedinPattern        = regexp.MustCompile(`https?://(?:www\.)?linkedin\.com/(in|company)/([\w-]+)/?`)
	urlPattern             = regexp.MustCompile(`https?://(?:www\.)?([\w-]+(?:\.[\w-]+)+)[\w./-]*`)
	// bare domains like "novabuild.com" without a scheme
	bareDomainPattern = regexp.MustCompile(`(?:^|[\s(])((?:[a-z0-9-]+\.)+(?:com|io|ai|co|net|org|dev))\b`)
)

// RegexExtractor creates a deterministic extractor for mentions carrying
// strong identity signals: emails, LinkedIn URLs and company URLs. Name-only
// mentions are left to the NER extractor.
func RegexExtractor() ExtractFunc {
	return func(ctx context.Context, text string) ([]model.Mention, error) {
		var mentions []model.Mention
		seenEmails := map[string]bool{}

		for _, match := range personWithEmailPattern.FindAllStringSubmatchIndex(text, -1) {
			name := text[match[2]:match[3]]
			email := strings.ToLower(text[match[4]:match[5]])
			seenEmails[email] = true
			mentions = append(mentions, model.Mention{
				Kind:  model.EntityKindPerson,
				Name:  name,
				Email: &email,
				Span:  model.Span{Start: match[0], End: match[1]},
			})
		}

		for _, match := range emailPattern.FindAllStringIndex(text, -1) {
			email := strings.ToLower(text[match[0]:match[1]])
			if seenEmails[email] {
				continue
			}
			seenEmails[email] = true
			name := email[:strings.Index(email, "@")]
			mentions = append(mentions, model.Mention{
				Kind:  model.EntityKindPerson,
				Name:  name,
				Email: &email,
				Span:  model.Span{Start: match[0], End: match[1]},
			})
		}

		for _, match := range linkedinPattern.FindAllStringSubmatchIndex(text, -1) {
			linkedinURL := strings.TrimSuffix(text[match[0]:match[1]], "/")
			kind := model.EntityKindPerson
			if text[match[2]:match[3]] == "company" {
				kind = model.EntityKindCompany
			}
			name := slugToName(text[match[4]:match[5]])
			mentions = append(mentions, model.Mention{
				Kind:        kind,
				Name:        name,
				LinkedInURL: &linkedinURL,
				Span:        model.Span{Start: match[0], End: match[1]},
			})
		}

		seenDomains := map[string]bool{}
		for _, match := range urlPattern.FindAllStringSubmatchIndex(text, -1) {
			url := text[match[0]:match[1]]
			if strings.Contains(url, "linkedin.com") {
				continue
			}
			domain := strings.ToLower(text[match[2]:match[3]])
			seenDomains[domain] = true
			mentions = append(mentions, model.Mention{
				Kind: model.EntityKindCompany,
				Name: domainToName(domain),
				URL:  &url,
				Span: model.Span{Start: match[0], End: match[1]},
			})
		}

		for _, match := range bareDomainPattern.FindAllStringSubmatchIndex(text, -1) {
			domain := strings.ToLower(text[match[2]:match[3]])
			if seenDomains[domain] {
				continue
			}
			seenDomains[domain] = true
			url := "https://" + domain
			mentions = append(mentions, model.Mention{
				Kind: model.EntityKindCompany,
				Name: domainToName(domain),
				URL:  &url,
				Span: model.Span{Start: match[2], End: match[3]},
			})
		}

		return mentions, nil
	}
}

// NERExtractor creates an extractor backed by a named entity recognition
// model. PER entities become person mentions and ORG entities become company
// mentions; locations and miscellaneous labels are ignored.
func NERExtractor() (ExtractFunc, error) {
	modelName := "KnightsAnalytics/distilbert-NER"
	modelPath, err := helper.PrepareModel(modelName, "model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "ner-pipeline",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}),
		},
	}
	nerPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create NER pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create NER pipeline: %w", err)
	}

	return func(ctx context.Context, text string) ([]model.Mention, error) {
		result, err := nerPipeline.RunPipeline([]string{text})
		if err != nil {
			return nil, fmt.Errorf("failed to run NER: %w", err)
		}

		if len(result.Entities) == 0 {
			return nil, nil
		}

		var mentions []model.Mention
		for _, entity := range result.Entities[0] {
			var kind model.EntityKind
			switch normalizeLabel(entity.Entity) {
			case "PER":
				kind = model.EntityKindPerson
			case "ORG":
				kind = model.EntityKindCompany
			default:
				continue
			}

			mentions = append(mentions, model.Mention{
				Kind: kind,
				Name: strings.TrimSpace(entity.Word),
				Span: model.Span{Start: int(entity.Start), End: int(entity.End)},
			})
		}

		return mentions, nil
	}, nil
}

// CombinedExtractor runs extractors in order and merges their mentions.
// Mentions of the same kind with the same normalized name are merged into
// one, earlier extractors winning on identity fields.
func CombinedExtractor(extractors ...ExtractFunc) ExtractFunc {
	return func(ctx context.Context, text string) ([]model.Mention, error) {
		var merged []model.Mention
		index := map[string]int{}

		for _, extract := range extractors {
			mentions, err := extract(ctx, text)
			if err != nil {
				return nil, err
			}
			for _, mention := range mentions {
				key := string(mention.Kind) + "|" + strings.ToLower(mention.Name)
				at, ok := index[key]
				if !ok {
					index[key] = len(merged)
					merged = append(merged, mention)
					continue
				}
				existing := &merged[at]
				if existing.URL == nil {
					existing.URL = mention.URL
				}
				if existing.LinkedInURL == nil {
					existing.LinkedInURL = mention.LinkedInURL
				}
				if existing.Email == nil {
					existing.Email = mention.Email
				}
			}
		}

		return merged, nil
	}
}

// normalizeLabel removes BIO tagging prefixes (B- for beginning, I- for inside)
func normalizeLabel(label string) string {
	if strings.HasPrefix(label, "B-") || strings.HasPrefix(label, "I-") {
		return label[2:]
	}
	return label
}

func slugToName(slug string) string {
	words := strings.Split(slug, "-")
	for i, word := range words {
		if word != "" {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}

func domainToName(domain string) string {
	label := strings.Split(domain, ".")[0]
	if label == "" {
		return domain
	}
	return strings.ToUpper(label[:1]) + label[1:]
}
