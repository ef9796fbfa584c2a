package service

import (
	"avatarsvc/internal/media/sniffer"
	"avatarsvc/internal/media/svg"
)

const (
	octetStream = "application/octet-stream"
	svgType     = "image/svg+xml"
)

func allowedTypes(types []string) map[string]struct{} {
	if len(types) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		allowed[sniffer.Canonical(t)] = struct{}{}
	}
	return allowed
}

// prepareImage checks an uploaded payload against the size limit and the
// allowed types and returns the bytes and content type to store. The declared
// type is kept as given unless it is missing, in which case the sniffed type
// is used. Empty payloads are not sniffed.
func (s *AvatarService) prepareImage(data []byte, declared string) ([]byte, string, error) {
	if s.cfg.MaxSizeBytes > 0 && int64(len(data)) > s.cfg.MaxSizeBytes {
		return nil, "", uploadFailed("image of %d bytes exceeds limit of %d", len(data), s.cfg.MaxSizeBytes)
	}

	contentType := declared
	if sniffer.Normalize(declared) == octetStream {
		contentType = ""
	}

	var detected sniffer.Result
	sniffed := false
	if len(data) > 0 {
		if result, err := sniffer.DetectHead(data); err == nil {
			detected, sniffed = result, true
		}
	}

	switch {
	case contentType == "" && sniffed:
		contentType = detected.MIME
	case contentType == "":
		return nil, "", uploadFailed("content type is missing and could not be detected")
	case sniffed && !sniffer.SameType(contentType, detected.MIME):
		return nil, "", uploadFailed("content type mismatch: declared %s, detected %s", contentType, detected.MIME)
	}

	if s.allowed != nil {
		if _, ok := s.allowed[sniffer.Canonical(contentType)]; !ok {
			return nil, "", uploadFailed("content type %s is not allowed", contentType)
		}
	}

	// The sniffer only sees the head of the payload, so a declared SVG is
	// sanitized even when detection came up empty.
	isSVG := sniffed && detected.Type == sniffer.TypeSVG
	if len(data) > 0 && (isSVG || sniffer.Canonical(contentType) == svgType) {
		clean, err := svg.Sanitize(data)
		if err != nil {
			return nil, "", uploadFailed("sanitize svg: %v", err)
		}
		data = clean
	}

	return data, contentType, nil
}
