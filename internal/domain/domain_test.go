package domain

import (
	"errors"
	"image/color"
	"testing"
)

func TestFormatExtension(t *testing.T) {
	tests := []struct {
		format ImageFormat
		ext    string
		mime   string
	}{
		{FormatPNG, "png", "image/png"},
		{FormatJPEG, "jpg", "image/jpeg"},
		{FormatWEBP, "webp", "image/webp"},
		{FormatSVG, "svg", "image/svg+xml"},
		{FormatGIF, "gif", "image/gif"},
		{FormatBMP, "bmp", "image/bmp"},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if got := tt.format.Extension(); got != tt.ext {
				t.Errorf("Extension() = %q, want %q", got, tt.ext)
			}
			if got := tt.format.MIMEType(); got != tt.mime {
				t.Errorf("MIMEType() = %q, want %q", got, tt.mime)
			}
		})
	}

	if got := ImageFormat("tiff").Extension(); got != "" {
		t.Errorf("unknown format extension = %q, want empty", got)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    ImageFormat
		wantErr bool
	}{
		{"PNG", FormatPNG, false},
		{".jpg", FormatJPEG, false},
		{"image/jpeg", FormatJPEG, false},
		{"image/svg+xml", FormatSVG, false},
		{" webp ", FormatWEBP, false},
		{"tiff", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("ParseFormat(%q) error = %v, want ErrInvalidFormat", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *ConversionOptions)
		wantErr bool
	}{
		{"defaults", func(o *ConversionOptions) {}, false},
		{"quality zero", func(o *ConversionOptions) { o.Quality = 0 }, true},
		{"quality too high", func(o *ConversionOptions) { o.Quality = 101 }, true},
		{"negative width", func(o *ConversionOptions) { o.Width = -1 }, true},
		{"unknown format", func(o *ConversionOptions) { o.Format = "tiff" }, true},
		{"missing format", func(o *ConversionOptions) { o.Format = "" }, true},
		{"short background", func(o *ConversionOptions) { o.Background = "#fff" }, false},
		{"bad background", func(o *ConversionOptions) { o.Background = "white" }, true},
		{"sized", func(o *ConversionOptions) { o.Width, o.Height = 1000, 500 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			err := opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidOptions) {
				t.Errorf("Validate() error = %v, want ErrInvalidOptions", err)
			}
		})
	}
}

func TestFillColor(t *testing.T) {
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}

	opts := DefaultOptions()
	if _, fill := opts.FillColor(); fill {
		t.Error("PNG without background should not be filled")
	}

	opts.Format = FormatJPEG
	c, fill := opts.FillColor()
	if !fill || c != white {
		t.Errorf("JPEG fill = %v %v, want white true", c, fill)
	}

	opts.Format = FormatPNG
	opts.Background = "#ff0000"
	c, fill = opts.FillColor()
	if !fill || c != (color.NRGBA{R: 255, A: 255}) {
		t.Errorf("explicit fill = %v %v, want red true", c, fill)
	}

	opts.Format = FormatBMP
	opts.Background = ""
	if _, fill := opts.FillColor(); fill {
		t.Error("BMP without background should keep alpha")
	}
}

func TestFillColorOpaqueForJPEG(t *testing.T) {
	tests := []struct {
		background string
		want       color.NRGBA
	}{
		{"#ffffff00", color.NRGBA{255, 255, 255, 255}},
		{"#ffffff80", color.NRGBA{255, 255, 255, 255}},
		{"#ff000000", color.NRGBA{255, 255, 255, 255}},
		{"#00000080", color.NRGBA{127, 127, 127, 255}},
		{"#f008", color.NRGBA{255, 119, 119, 255}},
		{"#336699", color.NRGBA{0x33, 0x66, 0x99, 255}},
	}

	for _, tt := range tests {
		t.Run(tt.background, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Format = FormatJPEG
			opts.Background = tt.background
			c, fill := opts.FillColor()
			if !fill || c != tt.want {
				t.Errorf("FillColor() = %v %v, want %v true", c, fill, tt.want)
			}
		})
	}

	// Formats with alpha keep the translucent background as given.
	opts := DefaultOptions()
	opts.Background = "#ffffff80"
	if c, _ := opts.FillColor(); c.A != 0x80 {
		t.Errorf("PNG fill alpha = %d, want 128", c.A)
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.NRGBA
		wantErr bool
	}{
		{"#fff", color.NRGBA{255, 255, 255, 255}, false},
		{"#102030", color.NRGBA{0x10, 0x20, 0x30, 0xff}, false},
		{"#10203080", color.NRGBA{0x10, 0x20, 0x30, 0x80}, false},
		{"#f008", color.NRGBA{0xff, 0, 0, 0x88}, false},
		{"#12345", color.NRGBA{}, true},
		{"#zzzzzz", color.NRGBA{}, true},
	}

	for _, tt := range tests {
		got, err := ParseHexColor(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseHexColor(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseHexColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestItemTransitions(t *testing.T) {
	item := NewItem("id-1", "cat.png", []byte{1, 2, 3}, Metadata{Width: 10, Height: 10})
	if err := item.Validate(); err != nil {
		t.Fatalf("new item invalid: %v", err)
	}
	if item.Status != StatusPending {
		t.Fatalf("expected pending, got %s", item.Status)
	}

	item.MarkProcessing()
	if err := item.Validate(); err != nil {
		t.Errorf("processing item invalid: %v", err)
	}

	item.Fail("boom")
	if item.OutputHandle != "" || item.Error != "boom" {
		t.Errorf("failed item has output %q error %q", item.OutputHandle, item.Error)
	}
	if err := item.Validate(); err != nil {
		t.Errorf("failed item invalid: %v", err)
	}

	item.MarkProcessing()
	item.Complete("h-1", FormatWEBP)
	if !item.IsCompleted() || item.Error != "" || item.OutputFormat != FormatWEBP {
		t.Errorf("unexpected completed item: %+v", item)
	}
	if err := item.Validate(); err != nil {
		t.Errorf("completed item invalid: %v", err)
	}

	item.Reset()
	if item.Status != StatusPending || item.OutputHandle != "" {
		t.Errorf("reset item: %+v", item)
	}

	broken := *item
	broken.Error = "leftover"
	if err := broken.Validate(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}
