// Package artifact issues the collectibles granted for verified payments:
// a unique ID, a small SVG derived from it, and a signed metadata document,
// both pinned to IPFS.
package artifact

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/craftmint/service/metrics"
	"github.com/gagliardetto/solana-go"
)

// Artifact is an issued collectible.
type Artifact struct {
	ID                string
	URI               *string // metadata URI; nil when the metadata upload failed
	ImageURI          string
	Owner             string
	MetadataSignature *string // base58 signature of the metadata document by the issuer
	IssuedAt          time.Time
}

// Metadata is the JSON document published for each artifact.
type Metadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Attributes  []Attribute `json:"attributes"`
	ArtifactID  string      `json:"artifactId"`
	Issuer      string      `json:"issuer,omitempty"`
}

// Attribute is a metadata trait.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// Uploader stores content and returns its content identifier.
type Uploader interface {
	Add(ctx context.Context, content []byte) (string, error)
}

// Signer signs metadata documents. *config.Identity satisfies it.
type Signer interface {
	PublicKey() solana.PublicKey
	Sign(payload []byte) (solana.Signature, error)
}

// Generator issues artifacts.
type Generator struct {
	uploader   Uploader
	signer     Signer
	gatewayURL string
	now        func() time.Time
	random     io.Reader
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewGenerator creates a Generator. signer and m may be nil.
func NewGenerator(uploader Uploader, signer Signer, gatewayURL string, m *metrics.Metrics, logger *slog.Logger) *Generator {
	return &Generator{
		uploader:   uploader,
		signer:     signer,
		gatewayURL: strings.TrimRight(gatewayURL, "/"),
		now:        time.Now,
		random:     rand.Reader,
		logger:     logger,
		metrics:    m,
	}
}

// Issue creates an artifact for owner. It fails only if the image cannot be
// generated or stored; a failed metadata upload leaves URI nil.
func (g *Generator) Issue(ctx context.Context, owner string) (*Artifact, error) {
	start := time.Now()
	a, err := g.issue(ctx, owner)
	if g.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		g.metrics.RecordArtifactIssue(status, time.Since(start).Seconds())
	}
	return a, err
}

func (g *Generator) issue(ctx context.Context, owner string) (*Artifact, error) {
	if owner == "" {
		return nil, errors.New("owner is required")
	}

	issuedAt := g.now().UTC()
	id, err := NewID(issuedAt, g.random)
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}

	svg, err := RenderSVG(id)
	if err != nil {
		return nil, fmt.Errorf("render image: %w", err)
	}

	imageCID, err := g.uploader.Add(ctx, svg)
	g.recordUpload("image", err)
	if err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}

	a := &Artifact{
		ID:       id,
		ImageURI: g.gatewayURL + "/" + imageCID,
		Owner:    owner,
		IssuedAt: issuedAt,
	}

	meta := Metadata{
		Name:        "Craft Artifact - " + id[:8],
		Description: "A unique artifact generated for its purchaser",
		Image:       a.ImageURI,
		Attributes: []Attribute{
			{TraitType: "Generated For", Value: owner},
			{TraitType: "Unique ID", Value: id},
		},
		ArtifactID: id,
	}
	if g.signer != nil {
		meta.Issuer = g.signer.PublicKey().String()
	}

	doc, err := json.MarshalIndent(meta, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	metaCID, err := g.uploader.Add(ctx, doc)
	g.recordUpload("metadata", err)
	if err != nil {
		// The image exists, so the artifact is still issued.
		g.logger.WarnContext(ctx, "could not upload artifact metadata",
			"artifact_id", id,
			"error", err,
		)
		return a, nil
	}
	uri := g.gatewayURL + "/" + metaCID
	a.URI = &uri

	if g.signer != nil {
		sig, err := g.signer.Sign(doc)
		if err != nil {
			g.logger.WarnContext(ctx, "could not sign artifact metadata",
				"artifact_id", id,
				"error", err,
			)
		} else {
			s := sig.String()
			a.MetadataSignature = &s
		}
	}

	g.logger.InfoContext(ctx, "artifact issued",
		"artifact_id", id,
		"owner", owner,
		"image_uri", a.ImageURI,
		"artifact_uri", uri,
	)
	return a, nil
}

func (g *Generator) recordUpload(kind string, err error) {
	if g.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	g.metrics.RecordIPFSUpload(kind, status)
}

// NewID returns a 64-character hex ID: the SHA-256 of the unix timestamp
// followed by 16 random bytes in hex.
func NewID(now time.Time, random io.Reader) (string, error) {
	token := make([]byte, 16)
	if _, err := io.ReadFull(random, token); err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(strconv.FormatInt(now.Unix(), 10) + hex.EncodeToString(token)))
	return hex.EncodeToString(sum[:]), nil
}

// RenderSVG draws one circle whose position, radius and colour come from the
// first 12 hex digits of id.
func RenderSVG(id string) ([]byte, error) {
	if len(id) < 12 {
		return nil, fmt.Errorf("id too short: %d characters", len(id))
	}
	digits := make([]int64, 3)
	for i := range digits {
		v, err := strconv.ParseInt(id[i*2:i*2+2], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("id is not hex: %w", err)
		}
		digits[i] = v
	}
	color := id[6:12]
	if _, err := hex.DecodeString(color); err != nil {
		return nil, fmt.Errorf("id is not hex: %w", err)
	}

	x, y := digits[0]*5, digits[1]*5
	r := float64(digits[2]) / 8
	svg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" version="1.2" baseProfile="tiny" width="1280" height="1280">`+
		`<circle cx="%d" cy="%d" r="%s" fill="#%s"/></svg>`,
		x, y, strconv.FormatFloat(r, 'f', -1, 64), color)
	return []byte(svg), nil
}
