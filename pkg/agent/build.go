package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/friendlyhq/friendly/pkg/events"
	"github.com/friendlyhq/friendly/pkg/llm"
	"github.com/friendlyhq/friendly/pkg/models"
	"github.com/friendlyhq/friendly/pkg/store"
)

const buildSystemPrompt = `You are a world-class web developer. Generate a complete, beautiful, single-page HTML website based on the user's description.

Rules:
- Output ONLY the raw HTML. No markdown, no code blocks, no explanation.
- Include all CSS inline in a <style> tag in the <head>.
- Use modern CSS (flexbox, grid, gradients, shadows, smooth transitions).
- Make it fully responsive and mobile-friendly.
- Use a polished, professional color palette appropriate for the business type.
- Include realistic placeholder content (text, sections, calls-to-action).
- Add subtle animations (fade-in, hover effects) using CSS only.
- Use Google Fonts via CDN link for beautiful typography.
- Include a hero section, features/services section, and a footer at minimum.
- Use emoji or unicode icons where appropriate instead of external icon libraries.
- Make the page look like a real, production-quality website.
- The HTML should be complete and self-contained (no external JS dependencies).
- Do NOT use any JavaScript.

Output the complete HTML document starting with <!DOCTYPE html>.`

const buildToolSystemPrompt = `You are a world-class web developer building a single-page website with file tools.

Use the tools to do your work:
- create_file(filename, content) to write a new file
- update_file(filename, content) to replace an existing file
- finish_build(summary, features) when the site is done

Rules:
- The primary file must be index.html, a complete self-contained HTML document.
- Include all CSS inline in a <style> tag in the <head>; do NOT use any JavaScript.
- Use modern CSS (flexbox, grid, gradients, shadows, smooth transitions) and make it fully responsive.
- Use Google Fonts via CDN link and realistic placeholder content.
- Include a hero section, features/services section, and a footer at minimum.
- When everything is written, call finish_build with a short summary and the list of features you built.`

const buildClarificationMessage = "I'd love to build something for you! Could you tell me more about what you need? For example:\n\n- What type of site? (landing page, portfolio, menu, etc.)\n- What's it for? (business name, purpose)\n- Any style preferences? (modern, minimal, colorful)"

var clarificationKeywords = []string{
	"build something",
	"make something",
	"create something",
	"build me something",
	"something cool",
	"anything",
	"whatever",
	"surprise me",
	"idk",
	"i don't know",
}

var siteKeywords = []string{"landing", "portfolio", "website", "page", "menu", "store", "blog", "app"}

const (
	buildTimeout  = 120 * time.Second
	buildMaxTurns = 10
)

// errNoArtifact means the tool loop ran out of turns without producing an
// index.html.
var errNoArtifact = errors.New("build loop produced no artifact")

// Build generates websites from natural-language descriptions via an
// iterative tool-calling loop, with a single-shot generation as fallback.
type Build struct {
	store      SessionStore
	previews   PreviewSaver
	emitter    *events.Emitter
	llm        llm.Completer
	backendURL string

	timeout    time.Duration
	maxTurns   int
	stageDelay time.Duration
}

// NewBuild wires the build workflow.
func NewBuild(st SessionStore, previews PreviewSaver, emitter *events.Emitter, completer llm.Completer, backendURL string) *Build {
	return &Build{
		store:      st,
		previews:   previews,
		emitter:    emitter,
		llm:        completer,
		backendURL: backendURL,
		timeout:    buildTimeout,
		maxTurns:   buildMaxTurns,
		stageDelay: 800 * time.Millisecond,
	}
}

// NeedsClarification reports whether the request is too vague to build
// anything useful.
func NeedsClarification(message string) bool {
	lower := strings.ToLower(strings.TrimSpace(message))
	if len(strings.Fields(lower)) <= 3 {
		hasSiteWord := false
		for _, kw := range siteKeywords {
			if strings.Contains(lower, kw) {
				hasSiteWord = true
				break
			}
		}
		if !hasSiteWord {
			return true
		}
	}
	for _, kw := range clarificationKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Run executes the build workflow for a session.
func (b *Build) Run(ctx context.Context, s *models.BuildSession, userMessage string, params models.RouterParams) {
	siteType := params.Service
	if siteType == "" {
		siteType = "website"
	}
	notes := params.Notes
	if notes == "" {
		notes = userMessage
	}

	if NeedsClarification(userMessage) {
		s.Status = models.BuildClarification
		b.save(ctx, s)
		b.emitter.Emit(ctx, s.ID, events.TypeBuildClarification, map[string]any{
			"message": buildClarificationMessage,
		})
		return
	}

	description := fmt.Sprintf("Create a %s", siteType)
	if notes != "" {
		description += ": " + notes
	}
	description += fmt.Sprintf(". Original request: %q", userMessage)
	s.Description = description

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.execute(ctx, s, siteType, notes, description); err != nil {
		now := time.Now().UTC()
		s.Status = models.BuildError
		s.Error = err.Error()
		s.CompletedAt = &now
		b.save(ctx, s)

		message := "Something went wrong while building. Please try again."
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			slog.Error("Build timed out", "session_id", s.ID)
			message = "Build timed out. Please try again with a simpler request."
		} else {
			slog.Error("Build workflow failed", "session_id", s.ID, "error", err)
		}
		b.emitter.Emit(context.WithoutCancel(ctx), s.ID, events.TypeBuildError, map[string]any{"message": message})
	}
}

func (b *Build) execute(ctx context.Context, s *models.BuildSession, siteType, notes, description string) error {
	b.emitter.Emit(ctx, s.ID, events.TypeBuildStarted, map[string]any{
		"message": fmt.Sprintf("Building your %s...", siteType),
		"steps": []map[string]any{
			{"id": "analyze", "label": "Analyzing requirements", "status": "in_progress"},
			{"id": "design", "label": "Designing layout", "status": "pending"},
			{"id": "generate", "label": "Generating code", "status": "pending"},
			{"id": "polish", "label": "Final polish", "status": "pending"},
		},
	})
	b.pause(ctx)

	b.emitter.Emit(ctx, s.ID, events.TypeBuildProgress, map[string]any{
		"step":           "design",
		"message":        "Designing your layout and color scheme...",
		"completed_step": "analyze",
	})
	b.pause(ctx)

	s.Status = models.BuildGenerating
	b.save(ctx, s)
	b.emitter.Emit(ctx, s.ID, events.TypeBuildProgress, map[string]any{
		"step":           "generate",
		"message":        "Generating HTML & CSS...",
		"completed_step": "design",
	})

	if b.llm == nil || !b.llm.Enabled() {
		s.Files["index.html"] = demoHTML(siteType, notes)
	} else if err := b.toolLoop(ctx, s, description); err != nil {
		slog.Warn("Build tool loop failed, falling back to single-shot generation",
			"session_id", s.ID, "error", err)
		html, genErr := b.generateSingleShot(ctx, description)
		if genErr != nil {
			return genErr
		}
		s.Files["index.html"] = html
	}

	primary, ok := s.Files["index.html"]
	if !ok || strings.TrimSpace(primary) == "" {
		return errNoArtifact
	}

	previewID := store.NewPreviewID()
	if err := b.previews.SavePreview(ctx, previewID, primary); err != nil {
		return fmt.Errorf("save preview: %w", err)
	}

	b.emitter.Emit(ctx, s.ID, events.TypeBuildProgress, map[string]any{
		"step":           "polish",
		"message":        "Adding final touches...",
		"completed_step": "generate",
	})
	b.pause(ctx)

	now := time.Now().UTC()
	s.Status = models.BuildComplete
	s.PreviewID = previewID
	s.CompletedAt = &now
	b.save(ctx, s)

	b.emitter.Emit(ctx, s.ID, events.TypeBuildComplete, map[string]any{
		"message":        fmt.Sprintf("Your %s is ready!", siteType),
		"preview_url":    fmt.Sprintf("%s/api/build/preview/%s", b.backendURL, previewID),
		"preview_id":     previewID,
		"features":       s.Features,
		"completed_step": "polish",
	})
	return nil
}

// toolLoop runs the iterative file-writing conversation. A plain-text answer
// that already is an HTML document short-circuits the loop; plain text
// without HTML gets a nudge back towards the tools.
func (b *Build) toolLoop(ctx context.Context, s *models.BuildSession, description string) error {
	tools := []llm.Tool{
		{
			Name:        "create_file",
			Description: "Create a new file with the given content",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"filename": map[string]any{"type": "string"},
					"content":  map[string]any{"type": "string"},
				},
				"required": []string{"filename", "content"},
			},
		},
		{
			Name:        "update_file",
			Description: "Replace the content of an existing file",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"filename": map[string]any{"type": "string"},
					"content":  map[string]any{"type": "string"},
				},
				"required": []string{"filename", "content"},
			},
		},
		{
			Name:        "finish_build",
			Description: "Mark the build as finished with a summary and feature list",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"summary":  map[string]any{"type": "string"},
					"features": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"required": []string{"summary"},
			},
		},
	}

	messages := []llm.Message{
		{Role: "system", Content: buildToolSystemPrompt},
		{Role: "user", Content: description},
	}

	for turn := 0; turn < b.maxTurns; turn++ {
		resp, err := b.llm.Complete(ctx, llm.Request{
			Model:       llm.ModelMixtral,
			Messages:    messages,
			Temperature: 0.7,
			MaxTokens:   4096,
			Tools:       tools,
		})
		if err != nil {
			return err
		}

		if len(resp.ToolCalls) == 0 {
			content := llm.StripFences(resp.Content)
			if strings.Contains(content, "<!DOCTYPE") || strings.Contains(content, "<html") {
				s.Files["index.html"] = content
				return nil
			}
			messages = append(messages,
				llm.Message{Role: "assistant", Content: resp.Content},
				llm.Message{Role: "user", Content: "Please use the provided tools (create_file, update_file, finish_build) to write the site files."},
			)
			continue
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			switch call.Name {
			case "create_file", "update_file":
				var args struct {
					Filename string `json:"filename"`
					Content  string `json:"content"`
				}
				if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil || args.Filename == "" {
					messages = append(messages, llm.Message{
						Role: "tool", Content: "error: invalid arguments", ToolCallID: call.ID,
					})
					continue
				}
				s.Files[args.Filename] = args.Content
				b.save(ctx, s)
				b.emitter.Emit(ctx, s.ID, events.TypeBuildProgress, map[string]any{
					"step":    "generate",
					"message": fmt.Sprintf("Writing %s...", args.Filename),
				})
				messages = append(messages, llm.Message{
					Role: "tool", Content: "ok", ToolCallID: call.ID,
				})
			case "finish_build":
				var args struct {
					Summary  string   `json:"summary"`
					Features []string `json:"features"`
				}
				if err := json.Unmarshal([]byte(call.Arguments), &args); err == nil {
					s.Summary = args.Summary
					if args.Features != nil {
						s.Features = args.Features
					}
				}
				if _, ok := s.Files["index.html"]; !ok {
					return errNoArtifact
				}
				return nil
			default:
				messages = append(messages, llm.Message{
					Role: "tool", Content: "error: unknown tool", ToolCallID: call.ID,
				})
			}
		}
	}

	if _, ok := s.Files["index.html"]; ok {
		return nil
	}
	return errNoArtifact
}

// generateSingleShot is the non-tool fallback: one completion producing the
// whole document.
func (b *Build) generateSingleShot(ctx context.Context, description string) (string, error) {
	resp, err := b.llm.Complete(ctx, llm.Request{
		Model: llm.ModelMixtral,
		Messages: []llm.Message{
			{Role: "system", Content: buildSystemPrompt},
			{Role: "user", Content: description},
		},
		Temperature: 0.7,
		MaxTokens:   4096,
	})
	if err != nil {
		return "", err
	}
	html := llm.StripFences(resp.Content)
	if strings.TrimSpace(html) == "" {
		return "", errNoArtifact
	}
	return html, nil
}

func (b *Build) pause(ctx context.Context) {
	if b.stageDelay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(b.stageDelay):
	}
}

func (b *Build) save(ctx context.Context, s *models.BuildSession) {
	if err := b.store.Save(ctx, store.KindSession, s.ID, s, store.SessionTTL); err != nil {
		slog.Error("Failed to save build session", "session_id", s.ID, "error", err)
	}
}

func titleCase(s string) string {
	prev := ' '
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(prev) || prev == ',' {
			prev = r
			return unicode.ToUpper(r)
		}
		prev = r
		return r
	}, s)
}

// demoHTML is the offline fallback site, used when no LLM key is set.
func demoHTML(siteType, notes string) string {
	title := titleCase(siteType)
	if notes != "" {
		title = titleCase(strings.TrimSpace(strings.SplitN(notes, ",", 2)[0]))
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>%[1]s</title>
<link href="https://fonts.googleapis.com/css2?family=Inter:wght@300;400;500;600;700&display=swap" rel="stylesheet">
<style>
* { margin: 0; padding: 0; box-sizing: border-box; }
body { font-family: 'Inter', sans-serif; color: #1a1a2e; background: #fafafa; }
.hero {
  min-height: 80vh; display: flex; flex-direction: column;
  align-items: center; justify-content: center; text-align: center;
  background: linear-gradient(135deg, #667eea 0%%, #764ba2 100%%);
  color: white; padding: 2rem;
}
.hero h1 { font-size: 3.5rem; font-weight: 700; margin-bottom: 1rem; animation: fadeIn 1s ease; }
.hero p { font-size: 1.25rem; opacity: 0.9; max-width: 600px; line-height: 1.6; animation: fadeIn 1.5s ease; }
.cta {
  margin-top: 2rem; padding: 1rem 2.5rem; background: white; color: #667eea;
  border: none; border-radius: 50px; font-size: 1.1rem; font-weight: 600;
  cursor: pointer; transition: transform 0.2s, box-shadow 0.2s;
  animation: fadeIn 2s ease;
}
.cta:hover { transform: translateY(-2px); box-shadow: 0 10px 30px rgba(0,0,0,0.2); }
.features {
  display: grid; grid-template-columns: repeat(auto-fit, minmax(280px, 1fr));
  gap: 2rem; padding: 5rem 2rem; max-width: 1100px; margin: 0 auto;
}
.feature {
  background: white; padding: 2rem; border-radius: 16px;
  box-shadow: 0 4px 20px rgba(0,0,0,0.06); transition: transform 0.2s;
}
.feature:hover { transform: translateY(-4px); }
.feature .icon { font-size: 2.5rem; margin-bottom: 1rem; }
.feature h3 { font-size: 1.25rem; margin-bottom: 0.5rem; }
.feature p { color: #666; line-height: 1.6; }
footer {
  text-align: center; padding: 3rem 2rem; background: #1a1a2e; color: rgba(255,255,255,0.7);
  font-size: 0.9rem;
}
@keyframes fadeIn { from { opacity: 0; transform: translateY(20px); } to { opacity: 1; transform: translateY(0); } }
</style>
</head>
<body>
<section class="hero">
  <h1>%[1]s</h1>
  <p>Welcome to our site. We're building something amazing. Stay tuned for updates.</p>
  <button class="cta">Get Started</button>
</section>
<section class="features">
  <div class="feature">
    <div class="icon">&#x2728;</div>
    <h3>Quality Service</h3>
    <p>We deliver exceptional quality in everything we do, ensuring your complete satisfaction.</p>
  </div>
  <div class="feature">
    <div class="icon">&#x1F680;</div>
    <h3>Fast &amp; Reliable</h3>
    <p>Quick turnaround times without compromising on quality. Your time matters to us.</p>
  </div>
  <div class="feature">
    <div class="icon">&#x1F4AC;</div>
    <h3>24/7 Support</h3>
    <p>Our dedicated team is always here to help. Reach out anytime, day or night.</p>
  </div>
</section>
<footer>
  <p>&copy; 2026 %[1]s. Built with Friendly AI.</p>
</footer>
</body>
</html>`, title)
}
