package registry

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/anacrolix/torrent/metainfo"

	"piecestream/internal/domain"
)

const magnetPrefix = "magnet:?xt=urn:btih:"

// Resolve derives the torrent id from a source without touching the network.
// A bare info hash (40 hex or 32 base32 characters) comes back as a magnet.
func Resolve(src domain.TorrentSource) (domain.TorrentID, domain.TorrentSource, error) {
	magnet := strings.TrimSpace(src.Magnet)
	file := strings.TrimSpace(src.Torrent)
	if (magnet == "") == (file == "") {
		return "", src, fmt.Errorf("%w: exactly one of magnet or torrent is required", domain.ErrInvalidSource)
	}

	if file != "" {
		mi, err := metainfo.LoadFromFile(file)
		if err != nil {
			return "", src, fmt.Errorf("%w: %v", domain.ErrInvalidSource, err)
		}
		return domain.TorrentID(mi.HashInfoBytes().HexString()), domain.TorrentSource{Torrent: file}, nil
	}

	if strings.HasPrefix(strings.ToLower(magnet), "magnet:") {
		m, err := metainfo.ParseMagnetUri(magnet)
		if err != nil {
			return "", src, fmt.Errorf("%w: %v", domain.ErrInvalidSource, err)
		}
		return domain.TorrentID(m.InfoHash.HexString()), domain.TorrentSource{Magnet: magnet}, nil
	}

	h, err := parseInfoHash(magnet)
	if err != nil {
		return "", src, err
	}
	id := domain.TorrentID(h.HexString())
	return id, domain.TorrentSource{Magnet: magnetPrefix + string(id)}, nil
}

func parseInfoHash(s string) (metainfo.Hash, error) {
	var h metainfo.Hash
	switch len(s) {
	case 40:
		if err := h.FromHexString(s); err != nil {
			return h, fmt.Errorf("%w: %v", domain.ErrInvalidSource, err)
		}
		return h, nil
	case 32:
		raw, err := base32.StdEncoding.DecodeString(strings.ToUpper(s))
		if err != nil || len(raw) != len(h) {
			return h, fmt.Errorf("%w: bad base32 info hash", domain.ErrInvalidSource)
		}
		copy(h[:], raw)
		return h, nil
	default:
		return h, fmt.Errorf("%w: unrecognised source %q", domain.ErrInvalidSource, s)
	}
}
