package telephony

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Minimal TwiML document builder. Elements render in insertion order with
// proper XML escaping; no Go Twilio helper library covers TwiML, so the
// handful of verbs used here are built directly.

type attr struct {
	key, value string
}

type element struct {
	name     string
	attrs    []attr
	text     string
	children []*element
}

func (e *element) attr(key, value string) *element {
	e.attrs = append(e.attrs, attr{key, value})
	return e
}

func (e *element) child(name string) *element {
	c := &element{name: name}
	e.children = append(e.children, c)
	return c
}

func (e *element) render(b *strings.Builder) {
	b.WriteByte('<')
	b.WriteString(e.name)
	for _, a := range e.attrs {
		b.WriteByte(' ')
		b.WriteString(a.key)
		b.WriteString(`="`)
		xml.EscapeText(b, []byte(a.value))
		b.WriteByte('"')
	}
	if e.text == "" && len(e.children) == 0 {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
	xml.EscapeText(b, []byte(e.text))
	for _, c := range e.children {
		c.render(b)
	}
	b.WriteString("</")
	b.WriteString(e.name)
	b.WriteByte('>')
}

type twiml struct {
	root element
}

func newTwiML() *twiml {
	return &twiml{root: element{name: "Response"}}
}

func (t *twiml) String() string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	t.root.render(&b)
	return b.String()
}

const (
	sayVoice    = "Polly.Amy"
	sayLanguage = "en-GB"
)

func (t *twiml) say(text string) {
	t.root.child("Say").attr("voice", sayVoice).attr("language", sayLanguage).text = text
}

func (t *twiml) play(url string) {
	t.root.child("Play").text = url
}

func (t *twiml) playDigits(digits string) {
	t.root.child("Play").attr("digits", digits)
}

func (t *twiml) pause(seconds int) {
	t.root.child("Pause").attr("length", fmt.Sprintf("%d", seconds))
}

func (t *twiml) redirect(url string) {
	t.root.child("Redirect").attr("method", "POST").text = url
}

func (t *twiml) hangup() {
	t.root.child("Hangup")
}

// gatherSpeech listens for callee speech and posts the transcription to
// action; no prompt is spoken.
func (t *twiml) gatherSpeech(action string, timeoutSeconds int) {
	t.root.child("Gather").
		attr("input", "speech").
		attr("action", action).
		attr("method", "POST").
		attr("timeout", fmt.Sprintf("%d", timeoutSeconds)).
		attr("speechTimeout", "auto").
		attr("language", sayLanguage)
}

// PlaybackTwiML plays the call script (pre-generated audio when audioURL is
// set, otherwise carrier TTS), records the callee's answer, and thanks them.
func PlaybackTwiML(audioURL, scriptText, recordingAction string) string {
	t := newTwiML()
	if audioURL != "" {
		t.play(audioURL)
	} else {
		t.say(scriptText)
	}
	t.pause(1)
	t.root.child("Record").
		attr("maxLength", "30").
		attr("timeout", "5").
		attr("action", recordingAction).
		attr("playBeep", "true").
		attr("trim", "trim-silence")
	t.say("Thank you for your time. Goodbye!")
	return t.String()
}

// ConversationTwiML opens a bidirectional media stream to streamURL and
// parks the call for maxSeconds while the bridge converses.
func ConversationTwiML(streamURL string, maxSeconds int) string {
	t := newTwiML()
	start := t.root.child("Start")
	start.child("Stream").
		attr("url", streamURL).
		attr("track", "both_tracks")
	t.pause(maxSeconds)
	return t.String()
}

// QueueInitialTwiML listens to the answering IVR menu (15s speech window)
// and falls through to the hold loop on silence.
func QueueInitialTwiML(ivrAction, holdLoopURL string) string {
	t := newTwiML()
	t.gatherSpeech(ivrAction, 15)
	t.redirect(holdLoopURL)
	return t.String()
}

// QueueDTMFTwiML presses the chosen menu digits, waits 2s, then listens for
// the next menu level.
func QueueDTMFTwiML(digits, ivrAction, holdLoopURL string) string {
	t := newTwiML()
	t.playDigits(digits)
	t.pause(2)
	t.gatherSpeech(ivrAction, 15)
	t.redirect(holdLoopURL)
	return t.String()
}

// QueueHoldTwiML is the hold loop: a 20s speech window posting to the
// human-check handler, looping back on silence.
func QueueHoldTwiML(humanCheckAction, holdLoopURL string) string {
	t := newTwiML()
	t.gatherSpeech(humanCheckAction, 20)
	t.redirect(holdLoopURL)
	return t.String()
}

// QueueHumanDetectedTwiML keeps the human on the line while the user calls
// back, then ends the call.
func QueueHumanDetectedTwiML() string {
	t := newTwiML()
	t.say("Hello, please hold for just a moment. The person you're calling for will be right with you.")
	t.pause(30)
	t.say("Thank you for waiting. Goodbye.")
	t.hangup()
	return t.String()
}

// HangupTwiML immediately ends the call.
func HangupTwiML() string {
	t := newTwiML()
	t.hangup()
	return t.String()
}

// ErrorTwiML speaks a short apology and ends the call. Served when a call
// arrives for a session that no longer exists.
func ErrorTwiML(message string) string {
	t := newTwiML()
	t.say(message)
	t.hangup()
	return t.String()
}
