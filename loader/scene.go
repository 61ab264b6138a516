package loader

import (
	"context"
	"errors"
	"math"

	"github.com/Swind/go-async-loader/core"
)

// ErrNotOwner is returned when owner-only state is touched from a context
// that is not running a completion item.
var ErrNotOwner = errors.New("loader: owner-only state used outside the owner context")

// Layout of a newly loaded item.
const (
	ItemX      = 100
	ItemY      = 100
	ItemHeight = 400
)

// hitSlop is the distance in pixels outside a rect that still counts as a hit.
const hitSlop = 2

// TextureID indexes a TextureStore.
type TextureID uint32

// Texture is an uploaded RGBA8 image.
type Texture struct {
	ID     TextureID
	Width  int
	Height int
	Pixels []byte
}

// TextureStore holds textures created on the owner. It is not safe for
// concurrent use; every method must run on the owner.
type TextureStore struct {
	textures []Texture
}

// CreateTexture uploads img and returns its id. It fails with ErrNotOwner
// unless ctx belongs to a completion item.
func (s *TextureStore) CreateTexture(ctx context.Context, img *Image) (TextureID, error) {
	if !core.IsOwnerContext(ctx) {
		return 0, ErrNotOwner
	}
	id := TextureID(len(s.textures))
	s.textures = append(s.textures, Texture{
		ID:     id,
		Width:  img.Width(),
		Height: img.Height(),
		Pixels: img.Pixels.Pix,
	})
	return id, nil
}

// Get returns the texture with the given id.
func (s *TextureStore) Get(id TextureID) (Texture, bool) {
	if int(id) >= len(s.textures) {
		return Texture{}, false
	}
	return s.textures[id], true
}

// Len returns the number of textures.
func (s *TextureStore) Len() int { return len(s.textures) }

// Rect is a rotated rectangle centred on (X, Y). Rotation is in radians.
type Rect struct {
	X, Y          float64
	Width, Height float64
	Rotation      float64
}

// Contains reports whether (x, y) lies within hitSlop of the rectangle.
func (r Rect) Contains(x, y float64) bool {
	s, c := math.Sincos(-r.Rotation)
	dx, dy := x-r.X, y-r.Y
	localX := c*dx - s*dy
	localY := s*dx + c*dy

	halfW, halfH := r.Width/2, r.Height/2
	distX := localX - math.Max(-halfW, math.Min(localX, halfW))
	distY := localY - math.Max(-halfH, math.Min(localY, halfH))
	return distX*distX+distY*distY <= hitSlop*hitSlop
}

// Item is a placed texture.
type Item struct {
	Texture TextureID
	Rect    Rect
	Source  string
}

// Scene is the owner-only collection of loaded items.
type Scene struct {
	Textures TextureStore
	items    []Item
}

func NewScene() *Scene {
	return &Scene{}
}

// AddImage creates a texture for img and appends an item for it at
// (ItemX, ItemY), ItemHeight tall and as wide as the aspect ratio requires.
func (s *Scene) AddImage(ctx context.Context, img *Image) (Item, error) {
	id, err := s.Textures.CreateTexture(ctx, img)
	if err != nil {
		return Item{}, err
	}
	item := Item{
		Texture: id,
		Rect: Rect{
			X:      ItemX,
			Y:      ItemY,
			Width:  ItemHeight * img.Aspect(),
			Height: ItemHeight,
		},
		Source: img.Path,
	}
	s.items = append(s.items, item)
	return item, nil
}

// Items returns a copy of the items in insertion order.
func (s *Scene) Items() []Item {
	return append([]Item(nil), s.items...)
}

// Len returns the number of items.
func (s *Scene) Len() int { return len(s.items) }

// HitTest returns the most recently added item under (x, y).
func (s *Scene) HitTest(x, y float64) (Item, bool) {
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].Rect.Contains(x, y) {
			return s.items[i], true
		}
	}
	return Item{}, false
}
