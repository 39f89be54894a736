package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSegment_SetText_ClearsAudio(t *testing.T) {
	seg := Segment{
		ID:            "seg-1",
		Text:          "Hello world",
		Voice:         "A",
		StorageFileID: "file-123",
		AudioURL:      "https://files.example.com/d/file-123",
		Status:        StatusReady,
		Progress:      100,
	}

	seg.SetText("Hello there")

	assert.Equal(t, "Hello there", seg.Text)
	assert.Equal(t, StatusIdle, seg.Status)
	assert.Empty(t, seg.StorageFileID)
	assert.Empty(t, seg.AudioURL)
	assert.Nil(t, seg.AudioData)
	assert.Equal(t, 0, seg.Progress)
}

func TestSegment_SetText_SameTextKeepsAudio(t *testing.T) {
	seg := Segment{
		Text:          "Hello world",
		StorageFileID: "file-123",
		Status:        StatusReady,
		Progress:      100,
	}

	seg.SetText("Hello world")

	assert.Equal(t, StatusReady, seg.Status)
	assert.Equal(t, "file-123", seg.StorageFileID)
}

func TestSegment_SetVoice_ClearsAudio(t *testing.T) {
	seg := Segment{
		Voice:         "A",
		StorageFileID: "file-123",
		Status:        StatusReady,
	}

	seg.SetVoice("B")

	assert.Equal(t, "B", seg.Voice)
	assert.Equal(t, StatusIdle, seg.Status)
	assert.False(t, seg.HasAudio())
}

func TestSegment_CommitUpload_DropsInlineBytes(t *testing.T) {
	seg := Segment{
		AudioData: []byte{1, 2, 3},
		Status:    StatusGenerating,
		Progress:  90,
	}

	seg.CommitUpload("file-9", "https://files.example.com/d/file-9")

	assert.Nil(t, seg.AudioData, "inline bytes must be dropped after durable upload")
	assert.Equal(t, "file-9", seg.StorageFileID)
	assert.Equal(t, StatusReady, seg.Status)
	assert.Equal(t, 100, seg.Progress)
}

func TestSegment_StorageID(t *testing.T) {
	tests := []struct {
		name string
		seg  Segment
		want string
	}{
		{"direct file id", Segment{StorageFileID: "f-1"}, "f-1"},
		{"from query url", Segment{AudioURL: "https://drive.example.com/uc?export=view&id=abc123"}, "abc123"},
		{"from query url with trailing params", Segment{AudioURL: "https://drive.example.com/uc?id=abc123&export=view"}, "abc123"},
		{"from path url", Segment{AudioURL: "https://files.example.com/d/xyz789"}, "xyz789"},
		{"no reference", Segment{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.seg.StorageID())
		})
	}
}

func TestSegment_TerminalStates(t *testing.T) {
	seg := Segment{Status: StatusGenerating, Progress: 40}
	seg.MarkCanceled()
	assert.Equal(t, StatusCanceled, seg.Status)

	seg.MarkGenerating(5)
	assert.Equal(t, StatusGenerating, seg.Status)
	assert.Equal(t, 5, seg.Progress)

	seg.MarkTimedOut()
	assert.Equal(t, StatusTimedOut, seg.Status)
	assert.Contains(t, seg.ErrorMessage, "re-generate", "timeout message should tell the user to retry")

	seg.MarkError("synthesis rejected voice")
	assert.Equal(t, StatusError, seg.Status)
	assert.Equal(t, "synthesis rejected voice", seg.ErrorMessage)
}

func TestSegment_SetProgress_Clamps(t *testing.T) {
	seg := Segment{}
	seg.SetProgress(-5)
	assert.Equal(t, 0, seg.Progress)
	seg.SetProgress(150)
	assert.Equal(t, 100, seg.Progress)
	seg.SetProgress(42)
	assert.Equal(t, 42, seg.Progress)
}
