package domain

import "strings"

// GenerationStatus tracks where a segment is in its narration lifecycle.
type GenerationStatus string

// Segment generation states. A segment must never be left in
// StatusGenerating after its run terminates, whatever the outcome.
const (
	StatusIdle       GenerationStatus = "idle"
	StatusGenerating GenerationStatus = "generating"
	StatusReady      GenerationStatus = "ready"
	StatusError      GenerationStatus = "error"
	StatusCanceled   GenerationStatus = "canceled"
	StatusTimedOut   GenerationStatus = "timed_out"
)

// Segment is the smallest narratable unit of text with its own generated audio.
//
// The playback reference is one of: inline encoded bytes (AudioData), a
// durable object-storage id (StorageFileID), or a resolved public URL
// (AudioURL). Exactly one representation is authoritative at a time; inline
// bytes are dropped once a durable upload succeeds so the catalog never
// stores duplicate payloads.
type Segment struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`

	// Playback reference, mutually exclusive once uploaded.
	AudioData     []byte `json:"audio_data,omitempty"`
	StorageFileID string `json:"storage_file_id,omitempty"`
	AudioURL      string `json:"audio_url,omitempty"`

	Status       GenerationStatus `json:"status"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Progress     int              `json:"progress"`
}

// HasAudio reports whether the segment carries any playback reference.
func (s *Segment) HasAudio() bool {
	return len(s.AudioData) > 0 || s.StorageFileID != "" || s.AudioURL != ""
}

// HasDurableAudio reports whether the segment's audio lives in object storage.
func (s *Segment) HasDurableAudio() bool {
	return s.StorageFileID != "" || s.AudioURL != ""
}

// StorageID returns the object-storage id for the segment's audio, falling
// back to extracting it from a previously resolved public URL. Returns ""
// when the segment has no durable reference. The repair service uses this to
// re-derive URLs for legacy segments.
func (s *Segment) StorageID() string {
	if s.StorageFileID != "" {
		return s.StorageFileID
	}
	// Legacy URLs embed the file id as the final path element or an id=
	// query parameter.
	if s.AudioURL == "" {
		return ""
	}
	if idx := strings.Index(s.AudioURL, "id="); idx >= 0 {
		rest := s.AudioURL[idx+len("id="):]
		if amp := strings.IndexByte(rest, '&'); amp >= 0 {
			rest = rest[:amp]
		}
		return rest
	}
	if idx := strings.LastIndexByte(s.AudioURL, '/'); idx >= 0 && idx < len(s.AudioURL)-1 {
		return s.AudioURL[idx+1:]
	}
	return ""
}

// SetText updates the segment body, eagerly clearing any existing audio so
// stale narration is never presented for edited content.
func (s *Segment) SetText(text string) {
	if text == s.Text {
		return
	}
	s.Text = text
	s.ResetAudio()
}

// SetVoice updates the requested voice, clearing existing audio for the same
// reason as SetText.
func (s *Segment) SetVoice(voice string) {
	if voice == s.Voice {
		return
	}
	s.Voice = voice
	s.ResetAudio()
}

// ResetAudio drops every playback reference and returns the segment to idle.
func (s *Segment) ResetAudio() {
	s.AudioData = nil
	s.StorageFileID = ""
	s.AudioURL = ""
	s.Status = StatusIdle
	s.ErrorMessage = ""
	s.Progress = 0
}

// MarkGenerating flips the segment into the generating state. The initial
// progress is a small positive value so clients can distinguish "about to
// start" from "idle".
func (s *Segment) MarkGenerating(initialProgress int) {
	s.Status = StatusGenerating
	s.ErrorMessage = ""
	s.Progress = initialProgress
}

// SetProgress clamps and records generation progress.
func (s *Segment) SetProgress(p int) {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	s.Progress = p
}

// CommitUpload records a successful durable upload: the storage reference
// becomes authoritative, inline bytes are dropped, and the segment is ready.
func (s *Segment) CommitUpload(fileID, url string) {
	s.StorageFileID = fileID
	s.AudioURL = url
	s.AudioData = nil
	s.Status = StatusReady
	s.ErrorMessage = ""
	s.Progress = 100
}

// MarkError records a generation failure.
func (s *Segment) MarkError(msg string) {
	s.Status = StatusError
	s.ErrorMessage = msg
	s.Progress = 0
}

// MarkCanceled records user-initiated cancellation.
func (s *Segment) MarkCanceled() {
	s.Status = StatusCanceled
	s.ErrorMessage = "generation canceled"
	s.Progress = 0
}

// MarkTimedOut records a wall-clock timeout. The message is action-oriented:
// a timeout is not a content problem, the user should simply retry.
func (s *Segment) MarkTimedOut() {
	s.Status = StatusTimedOut
	s.ErrorMessage = "generation timed out - click re-generate to try again"
	s.Progress = 0
}

// Clone returns a deep copy of the segment.
func (s Segment) Clone() Segment {
	out := s
	if s.AudioData != nil {
		out.AudioData = append([]byte(nil), s.AudioData...)
	}
	return out
}
