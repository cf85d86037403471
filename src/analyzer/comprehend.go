package analyzer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/comprehend/types"
)

// maxBatch is the Comprehend BatchDetect* per-request document ceiling.
const maxBatch = 25

// ComprehendAPI is the subset of the Comprehend client the adapter uses.
type ComprehendAPI interface {
	BatchDetectSentiment(ctx context.Context, in *comprehend.BatchDetectSentimentInput, optFns ...func(*comprehend.Options)) (*comprehend.BatchDetectSentimentOutput, error)
	BatchDetectEntities(ctx context.Context, in *comprehend.BatchDetectEntitiesInput, optFns ...func(*comprehend.Options)) (*comprehend.BatchDetectEntitiesOutput, error)
	BatchDetectKeyPhrases(ctx context.Context, in *comprehend.BatchDetectKeyPhrasesInput, optFns ...func(*comprehend.Options)) (*comprehend.BatchDetectKeyPhrasesOutput, error)
}

// Comprehend adapts AWS Comprehend's batch APIs to the TextAnalyzer
// contract. Requests are paged at the service's 25-document ceiling and each
// page's results are re-seated by the service-reported index, so callers see
// one dense result list in input order.
type Comprehend struct {
	client ComprehendAPI
	lang   types.LanguageCode
}

// NewComprehend wraps a Comprehend client with a fixed language code.
func NewComprehend(client ComprehendAPI, lang string) *Comprehend {
	return &Comprehend{client: client, lang: types.LanguageCode(lang)}
}

// DetectSentiment classifies every text, one result per input.
func (c *Comprehend) DetectSentiment(ctx context.Context, texts []string) ([]Sentiment, error) {
	out := make([]Sentiment, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := min(start+maxBatch, len(texts))
		resp, err := c.client.BatchDetectSentiment(ctx, &comprehend.BatchDetectSentimentInput{
			LanguageCode: c.lang,
			TextList:     texts[start:end],
		})
		if err != nil {
			return nil, fmt.Errorf("batch detect sentiment: %w", err)
		}
		if n := len(resp.ErrorList); n > 0 {
			return nil, fmt.Errorf("batch detect sentiment: %d documents rejected", n)
		}
		for _, item := range resp.ResultList {
			s := Sentiment{Label: string(item.Sentiment)}
			if sc := item.SentimentScore; sc != nil {
				s.Score = SentimentScore{
					Positive: float64(aws.ToFloat32(sc.Positive)),
					Negative: float64(aws.ToFloat32(sc.Negative)),
					Neutral:  float64(aws.ToFloat32(sc.Neutral)),
					Mixed:    float64(aws.ToFloat32(sc.Mixed)),
				}
			}
			out[start+int(aws.ToInt32(item.Index))] = s
		}
	}
	return out, nil
}

// DetectEntities extracts named entities, one (possibly empty) list per input.
func (c *Comprehend) DetectEntities(ctx context.Context, texts []string) ([][]Entity, error) {
	out := make([][]Entity, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := min(start+maxBatch, len(texts))
		resp, err := c.client.BatchDetectEntities(ctx, &comprehend.BatchDetectEntitiesInput{
			LanguageCode: c.lang,
			TextList:     texts[start:end],
		})
		if err != nil {
			return nil, fmt.Errorf("batch detect entities: %w", err)
		}
		if n := len(resp.ErrorList); n > 0 {
			return nil, fmt.Errorf("batch detect entities: %d documents rejected", n)
		}
		for _, item := range resp.ResultList {
			entities := make([]Entity, 0, len(item.Entities))
			for _, e := range item.Entities {
				entities = append(entities, Entity{
					Text:  aws.ToString(e.Text),
					Score: float64(aws.ToFloat32(e.Score)),
					Type:  string(e.Type),
				})
			}
			out[start+int(aws.ToInt32(item.Index))] = entities
		}
	}
	return out, nil
}

// DetectKeyPhrases extracts key phrases, one (possibly empty) list per input.
func (c *Comprehend) DetectKeyPhrases(ctx context.Context, texts []string) ([][]KeyPhrase, error) {
	out := make([][]KeyPhrase, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := min(start+maxBatch, len(texts))
		resp, err := c.client.BatchDetectKeyPhrases(ctx, &comprehend.BatchDetectKeyPhrasesInput{
			LanguageCode: c.lang,
			TextList:     texts[start:end],
		})
		if err != nil {
			return nil, fmt.Errorf("batch detect key phrases: %w", err)
		}
		if n := len(resp.ErrorList); n > 0 {
			return nil, fmt.Errorf("batch detect key phrases: %d documents rejected", n)
		}
		for _, item := range resp.ResultList {
			phrases := make([]KeyPhrase, 0, len(item.KeyPhrases))
			for _, p := range item.KeyPhrases {
				phrases = append(phrases, KeyPhrase{
					Text:  aws.ToString(p.Text),
					Score: float64(aws.ToFloat32(p.Score)),
				})
			}
			out[start+int(aws.ToInt32(item.Index))] = phrases
		}
	}
	return out, nil
}
