package gemini

import (
	"encoding/json"
	"strings"

	"github.com/lokutor-ai/luminary/pkg/audio"
	"github.com/lokutor-ai/luminary/pkg/live"
)

// Outgoing BidiGenerateContent frames.

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model                    string           `json:"model"`
	GenerationConfig         generationConfig `json:"generationConfig"`
	SystemInstruction        *content         `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}        `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}        `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string         `json:"text,omitempty"`
	InlineData *audio.Payload `json:"inlineData,omitempty"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []audio.Payload `json:"mediaChunks"`
}

// Incoming frames.

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	GoAway        *goAway          `json:"goAway,omitempty"`
	Error         *APIError        `json:"error,omitempty"`
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft"`
}

func buildSetup(cfg live.Config, transcribe bool) setupMessage {
	model := cfg.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	modality := cfg.Modality
	if modality == "" {
		modality = live.ModalityAudio
	}

	msg := setupMessage{
		Setup: setupConfig{
			Model: model,
			GenerationConfig: generationConfig{
				ResponseModalities: []string{string(modality)},
			},
		},
	}
	if cfg.SystemInstruction != "" {
		msg.Setup.SystemInstruction = &content{Parts: []part{{Text: cfg.SystemInstruction}}}
	}
	if modality == live.ModalityAudio {
		if cfg.Voice != "" {
			msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
				VoiceConfig: voiceConfig{
					PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice},
				},
			}
		}
		if transcribe {
			msg.Setup.InputAudioTranscription = &struct{}{}
			msg.Setup.OutputAudioTranscription = &struct{}{}
		}
	}
	return msg
}

// toServerMessage keeps every inline audio part of the model turn, in order.
func toServerMessage(sc *serverContent) *live.ServerMessage {
	msg := &live.ServerMessage{
		TurnComplete: sc.TurnComplete,
		Interrupted:  sc.Interrupted,
	}
	if sc.ModelTurn != nil {
		var text strings.Builder
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData != nil {
				msg.Audio = append(msg.Audio, *p.InlineData)
			}
			text.WriteString(p.Text)
		}
		msg.Text = text.String()
	}
	if sc.InputTranscription != nil {
		msg.InputTranscript = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		msg.OutputTranscript = sc.OutputTranscription.Text
	}
	return msg
}
