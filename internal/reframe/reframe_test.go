package reframe

import (
	"math"
	"testing"
)

func samplesAt(cx, cy, h, vis float64, n int) []Sample {
	w := h * 0.4
	out := make([]Sample, n)
	for i := range out {
		out[i] = Sample{
			Time:       float64(i) * 0.5,
			X:          cx - w/2,
			Y:          cy - h/2,
			Width:      w,
			Height:     h,
			Visibility: vis,
		}
	}
	return out
}

func TestDominantPersonCrop(t *testing.T) {
	srcW, srcH := 1920, 1080
	crop := DominantPersonCrop(samplesAt(600, 540, 700, 0.9, 10), srcW, srcH)
	if crop == nil {
		t.Fatal("expected a person crop")
	}

	// crop stays inside the frame
	if crop.X < 0 || crop.Y < 0 || crop.X+crop.Width > srcW || crop.Y+crop.Height > srcH {
		t.Errorf("crop escapes frame: %+v", crop)
	}
	// 9:16 within even-rounding tolerance
	ratio := float64(crop.Width) / float64(crop.Height)
	if math.Abs(ratio-9.0/16.0) > 0.01 {
		t.Errorf("aspect ratio %v, want 9:16", ratio)
	}
	// person center is inside the crop
	if 600 < float64(crop.X) || 600 > float64(crop.X+crop.Width) {
		t.Errorf("person center x=600 outside crop %+v", crop)
	}
	// even geometry
	if crop.X%2 != 0 || crop.Y%2 != 0 || crop.Width%2 != 0 || crop.Height%2 != 0 {
		t.Errorf("crop geometry must be even: %+v", crop)
	}
}

func TestDominantPersonCropLowVisibility(t *testing.T) {
	if crop := DominantPersonCrop(samplesAt(960, 540, 700, 0.2, 10), 1920, 1080); crop != nil {
		t.Errorf("low-confidence track must not anchor a crop: %+v", crop)
	}
}

func TestDominantPersonCropTinyPerson(t *testing.T) {
	if crop := DominantPersonCrop(samplesAt(960, 540, 100, 0.9, 10), 1920, 1080); crop != nil {
		t.Errorf("small figure must not anchor a crop: %+v", crop)
	}
}

func TestDominantPersonCropNoSamples(t *testing.T) {
	if crop := DominantPersonCrop(nil, 1920, 1080); crop != nil {
		t.Errorf("expected nil for empty samples, got %+v", crop)
	}
}

func TestDominantPersonCropMedianIgnoresOutliers(t *testing.T) {
	samples := samplesAt(400, 540, 700, 0.9, 9)
	// one wild detection on the far side of the frame
	samples = append(samples, Sample{Time: 5, X: 1800, Y: 0, Width: 100, Height: 200, Visibility: 0.9})
	crop := DominantPersonCrop(samples, 1920, 1080)
	if crop == nil {
		t.Fatal("expected a crop")
	}
	if 400 < float64(crop.X) || 400 > float64(crop.X+crop.Width) {
		t.Errorf("median should keep crop near x=400: %+v", crop)
	}
}

func TestCenterCrop(t *testing.T) {
	crop := CenterCrop(1920, 1080)
	if crop.Height > 1080 || crop.X+crop.Width > 1920 {
		t.Errorf("crop escapes frame: %+v", crop)
	}
	ratio := float64(crop.Width) / float64(crop.Height)
	if math.Abs(ratio-9.0/16.0) > 0.01 {
		t.Errorf("aspect ratio %v, want 9:16", ratio)
	}
	wantX := (1920 - crop.Width) / 2
	if delta := crop.X - wantX; delta < -2 || delta > 2 {
		t.Errorf("crop not centered: %+v", crop)
	}
}

func TestCenterCropEvenGeometryHoldsRatio(t *testing.T) {
	// 1080 of height gives a float width of 607.5; flooring both
	// dimensions to even independently (606x1080) skews the ratio, so
	// the height must be re-derived from the even width.
	crop := CenterCrop(1920, 1080)
	if crop.Width != 606 || crop.Height != 1076 {
		t.Errorf("crop dims = %dx%d, want 606x1076", crop.Width, crop.Height)
	}
	ratio := float64(crop.Width) / float64(crop.Height)
	if math.Abs(ratio-9.0/16.0) > 0.001 {
		t.Errorf("aspect ratio %v drifts past even-integer precision", ratio)
	}
}

func TestCenterCropNarrowSource(t *testing.T) {
	crop := CenterCrop(500, 1080)
	if crop.X+crop.Width > 500 || crop.Y+crop.Height > 1080 {
		t.Errorf("crop escapes narrow frame: %+v", crop)
	}
	ratio := float64(crop.Width) / float64(crop.Height)
	if math.Abs(ratio-9.0/16.0) > 0.01 {
		t.Errorf("aspect ratio %v, want 9:16", ratio)
	}
}
