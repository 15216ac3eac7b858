package twilio

import (
	"encoding/xml"
	"fmt"
)

// Parameter is a custom value Twilio hands to the stream on its start event.
type Parameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Connect twimlConnect `xml:"Connect"`
	Pause   twimlPause   `xml:"Pause"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL        string      `xml:"url,attr"`
	Parameters []Parameter `xml:"Parameter"`
}

type twimlPause struct {
	Length int `xml:"length,attr"`
}

// streamPauseSeconds keeps the call up while the stream connects.
const streamPauseSeconds = 20

// StreamTwiML renders the voice response that connects an answered call to
// the websocket at streamURL.
func StreamTwiML(streamURL string, params []Parameter) ([]byte, error) {
	doc := twimlResponse{
		Connect: twimlConnect{Stream: twimlStream{URL: streamURL, Parameters: params}},
		Pause:   twimlPause{Length: streamPauseSeconds},
	}
	body, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal twiml: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
