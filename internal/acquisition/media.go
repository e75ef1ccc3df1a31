package acquisition

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"medparse/pkg/models"
)

var supportedMediaTypes = map[string]bool{
	models.MediaTypePDF:  true,
	models.MediaTypeJPEG: true,
	models.MediaTypePNG:  true,
	models.MediaTypeTIFF: true,
	models.MediaTypeText: true,
	models.MediaTypeCSV:  true,
	models.MediaTypeJSON: true,
	models.MediaTypeDOCX: true,
	models.MediaTypeDOC:  true,
	models.MediaTypeRTF:  true,
}

var mediaTypeAliases = map[string]string{
	"image/jpg":                   models.MediaTypeJPEG,
	"image/pjpeg":                 models.MediaTypeJPEG,
	"image/tif":                   models.MediaTypeTIFF,
	"image/x-tiff":                models.MediaTypeTIFF,
	"application/x-pdf":           models.MediaTypePDF,
	"text/rtf":                    models.MediaTypeRTF,
	"application/x-rtf":           models.MediaTypeRTF,
	"text/x-csv":                  models.MediaTypeCSV,
	"application/csv":             models.MediaTypeCSV,
	"text/comma-separated-values": models.MediaTypeCSV,
	"text/json":                   models.MediaTypeJSON,
	"text/tab-separated-values":   models.MediaTypeText,
	"text/markdown":               models.MediaTypeText,
}

var extensionMediaTypes = map[string]string{
	".pdf":  models.MediaTypePDF,
	".jpg":  models.MediaTypeJPEG,
	".jpeg": models.MediaTypeJPEG,
	".png":  models.MediaTypePNG,
	".tif":  models.MediaTypeTIFF,
	".tiff": models.MediaTypeTIFF,
	".txt":  models.MediaTypeText,
	".tsv":  models.MediaTypeText,
	".md":   models.MediaTypeText,
	".csv":  models.MediaTypeCSV,
	".json": models.MediaTypeJSON,
	".docx": models.MediaTypeDOCX,
	".doc":  models.MediaTypeDOC,
	".rtf":  models.MediaTypeRTF,
}

// canonicalMediaType strips parameters and resolves aliases.
func canonicalMediaType(mediaType string) string {
	mt := models.BaseMediaType(mediaType)
	if alias, ok := mediaTypeAliases[mt]; ok {
		return alias
	}
	return mt
}

// IsSupported reports whether mediaType is accepted by the chain.
func IsSupported(mediaType string) bool {
	return supportedMediaTypes[canonicalMediaType(mediaType)]
}

// ResolveMediaType returns the effective media type of a document.
// A declared type wins when present. A missing or octet-stream type is
// inferred from the extension, then from the content.
func ResolveMediaType(declared, filename string, content []byte) (string, error) {
	const op = "ResolveMediaType"

	mt := canonicalMediaType(declared)
	if mt != "" && mt != models.MediaTypeOctet {
		if !supportedMediaTypes[mt] {
			return "", WrapAcquisitionError(op, ErrUnsupportedMediaType, mt)
		}
		return mt, nil
	}

	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		if byExt, ok := extensionMediaTypes[ext]; ok {
			return byExt, nil
		}
	}

	if len(content) > 0 {
		sniffed := canonicalMediaType(mimetype.Detect(content).String())
		if supportedMediaTypes[sniffed] {
			return sniffed, nil
		}
		return "", WrapAcquisitionError(op, ErrUnsupportedMediaType, "detected "+sniffed)
	}

	return "", WrapAcquisitionError(op, ErrUnsupportedMediaType, "media type could not be determined")
}
