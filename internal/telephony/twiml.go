package telephony

import (
	"bytes"
	"encoding/xml"
)

// Minimal TwiML response builder. It intentionally avoids any provider SDK
// dependency; only the verbs the voice webhook needs exist here.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlPause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr,omitempty"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

const twimlVoice = "alice"

// RenderVoiceScript produces the scripted prompt played into every outbound
// call. The script is intentionally fixed; the call's fate is decided by the
// async AMD callback, not by anything said here.
func RenderVoiceScript() (string, error) {
	r := twimlResponse{Verbs: []any{
		twimlSay{Voice: twimlVoice, Text: "Hello! This is a test call from the A M D detection system."},
		twimlPause{Length: 2},
		twimlSay{Voice: twimlVoice, Text: "If you can hear this message, the call was successfully connected to a human."},
		twimlPause{Length: 1},
		twimlSay{Voice: twimlVoice, Text: "Thank you for participating in this test. Goodbye!"},
	}}
	return encodeTwiML(r)
}

// HangupScript is the degraded response for internal errors: a short apology
// and an explicit Hangup, so the provider never holds a call with no
// instructions. It is a constant because rendering it must not be able to fail.
const HangupScript = xml.Header + `<Response>
  <Say voice="alice">An error occurred. Goodbye.</Say>
  <Hangup/>
</Response>`

func encodeTwiML(r twimlResponse) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
