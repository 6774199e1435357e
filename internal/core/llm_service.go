package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"airr.io/student-analytics/internal/store"
)

const defaultAnalysisModelName = "gemini-1.5-flash-latest"

// LLMService answers dataset questions through Gemini in JSON mode.
type LLMService struct {
	client    *genai.Client
	modelName string
	logger    *zap.Logger
}

func NewLLMService(ctx context.Context, apiKey, modelName string, logger *zap.Logger) (*LLMService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if modelName == "" {
		modelName = defaultAnalysisModelName
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &LLMService{client: client, modelName: modelName, logger: logger}, nil
}

func (s *LLMService) Close() {
	if s.client == nil {
		return
	}
	if err := s.client.Close(); err != nil {
		s.logger.Warn("error closing GenAI client", zap.Error(err))
	} else {
		s.logger.Info("GenAI client closed")
	}
}

// Analyze sends the question and the full dataset to the model and returns
// the validated answer.
func (s *LLMService) Analyze(ctx context.Context, question string, ds store.Dataset) (*store.AnalysisResponse, error) {
	parts, err := BuildAnalysisPrompt(question, ds)
	if err != nil {
		return nil, err
	}

	model := s.client.GenerativeModel(s.modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(analystSystemInstruction)},
	}
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = analysisSchema()

	s.logger.Debug("sending analysis request",
		zap.String("model", s.modelName), zap.Int("records", len(ds)))
	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini analysis request failed: %w", err)
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}
	return ParseAnalysis(text)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini response was empty or had no valid candidates")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		}
	}
	if responseText.Len() == 0 {
		return "", fmt.Errorf("gemini response contained no text parts")
	}
	return responseText.String(), nil
}
