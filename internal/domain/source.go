package domain

import (
	"errors"
	"strings"
)

type SourceKind string

const (
	SourceMetainfo SourceKind = "metainfo"
	SourceMagnet   SourceKind = "magnet"
)

// Source is the download descriptor produced by resolution: either the raw
// metainfo payload or a magnet URI. Exactly one of Metainfo and Magnet is set.
type Source struct {
	Kind     SourceKind
	Metainfo []byte
	Magnet   string
}

func MetainfoSource(data []byte) Source {
	return Source{Kind: SourceMetainfo, Metainfo: data}
}

func MagnetSource(uri string) Source {
	return Source{Kind: SourceMagnet, Magnet: uri}
}

func (s Source) Validate() error {
	switch s.Kind {
	case SourceMetainfo:
		if len(s.Metainfo) == 0 {
			return errors.New("metainfo source is empty")
		}
	case SourceMagnet:
		if strings.TrimSpace(s.Magnet) == "" {
			return errors.New("magnet source is empty")
		}
	default:
		return errors.New("unknown source kind")
	}
	return nil
}

// EpisodeHint narrows file selection inside season packs. Zero values mean
// the hint is absent.
type EpisodeHint struct {
	Season  int `json:"season,omitempty"`
	Episode int `json:"episode,omitempty"`
}

func (h EpisodeHint) Valid() bool {
	return h.Season > 0 && h.Episode > 0
}
