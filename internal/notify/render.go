package notify

import (
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/ignite/campaign-lifecycle-engine/internal/store"
	"github.com/ignite/campaign-lifecycle-engine/internal/verify"
)

// Payload is one stage's rendered chat message: Block Kit blocks plus a
// plain-text fallback for notifications and accessibility clients.
type Payload struct {
	Blocks       []goslack.Block
	FallbackText string
}

func header(text string) *goslack.HeaderBlock {
	return goslack.NewHeaderBlock(goslack.NewTextBlockObject(goslack.PlainTextType, text, false, false))
}

func section(text string) *goslack.SectionBlock {
	return goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false), nil, nil)
}

// renderPreLaunch builds the Pre-Launch (T-21h) notification.
func renderPreLaunch(s *store.CampaignSchedule) Payload {
	fallback := fmt.Sprintf("Pre-Launch: %s round %d scheduled for %s", s.CampaignName, s.RoundNumber, s.ScheduledDate.Format("2006-01-02 15:04 MST"))
	blocks := []goslack.Block{
		header(fmt.Sprintf("📋 Pre-Launch — %s (round %d)", s.CampaignName, s.RoundNumber)),
		section(fmt.Sprintf("*Scheduled:* %s\n*List:* %s\n*Recipients:* %s", s.ScheduledDate.Format("2006-01-02 15:04 MST"), s.ListName, s.RecipientRange())),
	}
	return Payload{Blocks: blocks, FallbackText: fallback}
}

// renderPreFlight builds the Pre-Flight (T-195m) notification from a
// verification result.
func renderPreFlight(s *store.CampaignSchedule, result *verify.PreFlightResult) Payload {
	emoji := "✅"
	switch result.Status {
	case verify.StatusWarning:
		emoji = "⚠️"
	case verify.StatusBlocked:
		emoji = "🛑"
	}

	fallback := fmt.Sprintf("Pre-Flight: %s round %d status=%s", s.CampaignName, s.RoundNumber, result.Status)
	blocks := []goslack.Block{
		header(fmt.Sprintf("%s Pre-Flight — %s (round %d)", emoji, s.CampaignName, s.RoundNumber)),
		section(fmt.Sprintf("*Status:* %s", result.Status)),
	}
	for _, issue := range result.Issues {
		blocks = append(blocks, section(fmt.Sprintf("• [%s] %s", issue.Severity, issue.Message)))
	}
	if result.AIAnalysis != nil {
		blocks = append(blocks, section(fmt.Sprintf("*List quality score:* %.0f", result.AIAnalysis.ListQualityScore)))
		for _, rec := range result.AIAnalysis.Recommendations {
			blocks = append(blocks, section("💡 "+rec))
		}
	}
	return Payload{Blocks: blocks, FallbackText: fallback}
}

// renderLaunchWarning builds the Launch Warning (T-15m) notification.
func renderLaunchWarning(s *store.CampaignSchedule, quick *verify.PreFlightResult) Payload {
	fallback := fmt.Sprintf("Launch Warning: %s round %d launches in 15 minutes", s.CampaignName, s.RoundNumber)
	blocks := []goslack.Block{
		header(fmt.Sprintf("⏰ Launch Warning — %s (round %d) launches in 15 minutes", s.CampaignName, s.RoundNumber)),
	}
	if quick != nil && quick.Status != verify.StatusReady {
		blocks = append(blocks, section(fmt.Sprintf("*Quick check:* %s", quick.Status)))
	}
	return Payload{Blocks: blocks, FallbackText: fallback}
}

// renderLaunchConfirmation builds the Launch Confirmation notification.
func renderLaunchConfirmation(s *store.CampaignSchedule) Payload {
	fallback := fmt.Sprintf("Launched: %s round %d", s.CampaignName, s.RoundNumber)
	blocks := []goslack.Block{
		header(fmt.Sprintf("🚀 Launched — %s (round %d)", s.CampaignName, s.RoundNumber)),
		section(fmt.Sprintf("*External campaign id:* %s", s.ExternalCampaignID)),
	}
	return Payload{Blocks: blocks, FallbackText: fallback}
}

// renderWrapup builds the Wrap-Up performance report notification.
func renderWrapup(s *store.CampaignSchedule, m *store.CampaignMetrics, report *verify.AIAnalysis) Payload {
	fallback := fmt.Sprintf("Wrap-Up: %s round %d delivered=%d/%d", s.CampaignName, s.RoundNumber, m.Delivered, m.Processed)
	blocks := []goslack.Block{
		header(fmt.Sprintf("📊 Wrap-Up — %s (round %d)", s.CampaignName, s.RoundNumber)),
		section(fmt.Sprintf("*Delivered:* %d/%d (%.2f%%)\n*Bounced:* %d (%.2f%%)", m.Delivered, m.Processed, m.DeliveryRate, m.Bounced, m.BounceRate)),
	}
	if m.OpenRate != nil {
		blocks = append(blocks, section(fmt.Sprintf("*Open rate:* %.2f%%", *m.OpenRate)))
	}
	if m.ClickRate != nil {
		blocks = append(blocks, section(fmt.Sprintf("*Click rate:* %.2f%%", *m.ClickRate)))
	}
	if report != nil {
		for _, insight := range report.Insights {
			blocks = append(blocks, section("📈 "+insight))
		}
		for _, rec := range report.Recommendations {
			blocks = append(blocks, section("💡 "+rec))
		}
	}
	return Payload{Blocks: blocks, FallbackText: fallback}
}
