package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewImageSniffsContentType(t *testing.T) {
	assert.Equal(t, "image/png", NewImage("a.png", []byte("\x89PNG\r\n\x1a\n")).ContentType)
	assert.Equal(t, "image/jpeg", NewImage("a.jpg", []byte("\xff\xd8\xff\xe0")).ContentType)
	assert.Equal(t, "text/plain", NewImage("a.txt", []byte("hello")).ContentType)
	assert.Equal(t, int64(5), NewImage("a.txt", []byte("hello")).Size())

	var nilImage *Image
	assert.Zero(t, nilImage.Size())
	assert.Nil(t, nilImage.Clone())
}

func TestEvidenceUpdateShallowMerge(t *testing.T) {
	idType := "passport"
	front := NewImage("front.png", []byte("\x89PNG\r\n\x1a\n"))
	d := EvidenceUpdate{IDType: &idType, Front: front}.Apply(NewEvidenceData())

	assert.Equal(t, "passport", d.IDType)
	assert.NotSame(t, front, d.Front)
	assert.Equal(t, DefaultOCRFields(), d.ExtractedFields, "untouched keys are kept")

	x := OCRFields{FullName: "First", Gender: "F"}
	y := OCRFields{IDNumber: "ID-2"}
	d = EvidenceUpdate{ExtractedFields: &x}.Apply(d)
	d = EvidenceUpdate{ExtractedFields: &y}.Apply(d)
	assert.Equal(t, y, d.ExtractedFields, "nested object is replaced, never merged")
	assert.Equal(t, "passport", d.IDType)
	assert.NotNil(t, d.Front)

	d = EvidenceUpdate{ClearFront: true}.Apply(d)
	assert.Nil(t, d.Front)
}
