package usecases

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/abelzeko/surgecast/internal/entities"
	"github.com/abelzeko/surgecast/internal/integration/openai"
	"github.com/abelzeko/surgecast/internal/repository"
)

// GetCycleStatus retrieves the record of one cycle
func (uc *ForecastUseCase) GetCycleStatus(cycle string) (*entities.CycleRecord, error) {
	c, err := entities.ParseCycle(strings.TrimSpace(cycle))
	if err != nil {
		return nil, err
	}
	log.Printf("Retrieving status of cycle %s", c)
	return uc.repo.GetCycle(c.String())
}

// ListRecentCycles returns the newest cycles first
func (uc *ForecastUseCase) ListRecentCycles(limit int) ([]entities.CycleRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	return uc.repo.ListCycles(limit)
}

// GetLastUpdateTime returns when any cycle last changed status
func (uc *ForecastUseCase) GetLastUpdateTime() (time.Time, error) {
	return uc.repo.GetLastUpdateTime()
}

// ListForcingFiles returns the GFS cycles recorded as downloaded, oldest first
func (uc *ForecastUseCase) ListForcingFiles() ([]entities.ForcingFile, error) {
	return uc.repo.ListForcingFiles()
}

// FormatForcingSummary describes the downloaded GFS cycles in one line
func FormatForcingSummary(files []entities.ForcingFile) string {
	if len(files) == 0 {
		return "GFS cycles on disk: none"
	}
	last := files[len(files)-1]
	return fmt.Sprintf("GFS cycles on disk: %d (latest %s, downloaded %s UTC)",
		len(files), last.Cycle, last.DownloadedAt.UTC().Format(entities.StatusTimeFormat))
}

// FormatCycleRecord formats one cycle for display
func FormatCycleRecord(rec *entities.CycleRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cycle %s: %s\n", rec.Cycle, rec.Status)
	if rec.Producer != "" {
		fmt.Fprintf(&b, "Producer: %s\n", rec.Producer)
	}
	if rec.Message != "" {
		fmt.Fprintf(&b, "Message: %s\n", rec.Message)
	}
	fmt.Fprintf(&b, "Started: %s UTC\n", rec.StartedAt.UTC().Format(entities.StatusTimeFormat))
	fmt.Fprintf(&b, "Updated: %s UTC", rec.UpdatedAt.UTC().Format(entities.StatusTimeFormat))
	return b.String()
}

// FormatCycleList formats a list of cycles, one per line
func FormatCycleList(recs []entities.CycleRecord) string {
	if len(recs) == 0 {
		return "No forecast cycles recorded yet."
	}
	var b strings.Builder
	b.WriteString("Recent cycles:\n\n")
	for _, rec := range recs {
		fmt.Fprintf(&b, "• %s  %s  (%s)\n", rec.Cycle, rec.Status, rec.UpdatedAt.UTC().Format(entities.StatusTimeFormat))
	}
	return b.String()
}

// FormatStatusReport formats the status.json content for display
func FormatStatusReport(r *entities.StatusReport) string {
	text := fmt.Sprintf("Current cycle %s is %s (updated %s UTC)", r.Cycle, r.Status, r.LastUpdate)
	if r.LastForecast.Date != "" {
		text += fmt.Sprintf("\nLast published forecast: %s %sZ", r.LastForecast.Date, r.LastForecast.Cycle)
	}
	return text
}

// HandleNaturalLanguageQuery interprets a free-text question with the AI
// service and returns the reply to show
func (uc *ForecastUseCase) HandleNaturalLanguageQuery(ctx context.Context, query string) (string, error) {
	if uc.openAIService == nil {
		return "I don't understand. Use /help to see available commands.", nil
	}
	log.Printf("Interpreting natural language query: %s", query)

	recent, err := uc.ListRecentCycles(8)
	if err != nil {
		log.Printf("Error fetching recent cycles: %v", err)
		return "Sorry, I couldn't read the forecast history right now.", nil
	}
	ids := make([]string, 0, len(recent))
	for _, rec := range recent {
		ids = append(ids, rec.Cycle)
	}

	agentResp, err := uc.openAIService.InterpretUserQuery(ctx, query, ids)
	if err != nil {
		log.Printf("Error interpreting user query via OpenAI: %v", err)
		return "Sorry, I'm having trouble understanding right now. Please try again later or use /help.", nil
	}
	log.Printf("Agent response: Command='%s', Cycle='%s', Message='%s'",
		agentResp.CommandName, agentResp.Cycle, agentResp.UserMessage)

	prefix := agentResp.UserMessage
	if prefix != "" {
		prefix += "\n\n"
	}

	switch agentResp.CommandName {
	case openai.CommandGetCycleStatus:
		if agentResp.Cycle == "" {
			return agentResp.UserMessage, nil
		}
		rec, err := uc.GetCycleStatus(agentResp.Cycle)
		if errors.Is(err, repository.ErrCycleNotFound) {
			return prefix + fmt.Sprintf("There is no record of cycle %s. Use /cycles to see recent ones.", agentResp.Cycle), nil
		}
		if err != nil {
			log.Printf("Error fetching cycle after agent interpretation: %v", err)
			return "Sorry, I couldn't fetch that cycle right now.", nil
		}
		return prefix + FormatCycleRecord(rec), nil
	case openai.CommandListCycles:
		return prefix + FormatCycleList(recent), nil
	case openai.CommandGeneralQuery:
		return agentResp.UserMessage, nil
	default:
		log.Printf("Agent returned unexpected command: %s", agentResp.CommandName)
		return "I'm not sure how to respond to that. You can use /help for commands.", nil
	}
}
