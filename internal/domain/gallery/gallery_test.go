package gallery_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/okian/facegate/internal/domain/gallery"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBuilder(t *testing.T) {
	Convey("Given a builder in all-samples mode", t, func() {
		b := gallery.NewBuilder(gallery.ModeAll)
		So(b.Add("alice", []float64{0, 0}), ShouldBeNil)
		So(b.Add("bob", []float64{1, 1}), ShouldBeNil)
		So(b.Add("alice", []float64{2, 0}), ShouldBeNil)

		Convey("When building", func() {
			g := b.Build()

			Convey("Then identities should keep first-seen order and every sample", func() {
				So(g.Identities(), ShouldResemble, []string{"alice", "bob"})
				So(g.Len(), ShouldEqual, 2)
				So(g.Size(), ShouldEqual, 3)
				So(g.Samples("alice"), ShouldEqual, 2)
				So(g.Dim(), ShouldEqual, 2)
			})

			Convey("And Range should visit pairs in gallery order", func() {
				var seen []string
				g.Range(func(identity string, _ []float64) bool {
					seen = append(seen, identity)
					return true
				})
				So(seen, ShouldResemble, []string{"alice", "alice", "bob"})
			})
		})

		Convey("When adding invalid samples", func() {
			So(errors.Is(b.Add(" ", []float64{1, 2}), gallery.ErrEmptyIdentity), ShouldBeTrue)
			So(errors.Is(b.Add("carol", nil), gallery.ErrEmptyEmbedding), ShouldBeTrue)
			So(errors.Is(b.Add("carol", []float64{1, 2, 3}), gallery.ErrDimensionMismatch), ShouldBeTrue)
			So(b.Len(), ShouldEqual, 2)
		})
	})

	Convey("Given a builder in mean mode", t, func() {
		b := gallery.NewBuilder(gallery.ModeMean)
		So(b.Add("alice", []float64{0, 0}), ShouldBeNil)
		So(b.Add("alice", []float64{2, 4}), ShouldBeNil)

		Convey("Then each identity should collapse to its centroid", func() {
			g := b.Build()
			So(g.Mode(), ShouldEqual, gallery.ModeMean)
			So(g.Size(), ShouldEqual, 1)
			So(g.Entries()[0].Embeddings[0], ShouldResemble, []float64{1, 2})
		})
	})

	Convey("Given mode names", t, func() {
		m, err := gallery.ParseMode("MEAN")
		So(err, ShouldBeNil)
		So(m, ShouldEqual, gallery.ModeMean)

		_, err = gallery.ParseMode("median")
		So(errors.Is(err, gallery.ErrInvalidMode), ShouldBeTrue)
	})
}

func TestHolder(t *testing.T) {
	Convey("Given a holder with no gallery", t, func() {
		h := gallery.NewHolder(nil)

		Convey("Then it should serve an empty snapshot", func() {
			So(h.Load(), ShouldNotBeNil)
			So(h.Load().Len(), ShouldEqual, 0)
		})

		Convey("When swapping while readers are active", func() {
			b := gallery.NewBuilder(gallery.ModeAll)
			So(b.Add("alice", []float64{1}), ShouldBeNil)
			next := b.Build()

			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < 100; j++ {
						_ = h.Load().Len()
					}
				}()
			}
			prev := h.Swap(next)
			wg.Wait()

			Convey("Then readers should see the new snapshot afterwards", func() {
				So(prev.Len(), ShouldEqual, 0)
				So(h.Load(), ShouldEqual, next)
			})
		})
	})
}

func TestFileCodec(t *testing.T) {
	Convey("Given a gallery with two identities", t, func() {
		dir := t.TempDir()
		b := gallery.NewBuilder(gallery.ModeAll)
		So(b.Add("person2", []float64{0.1, 0.2}), ShouldBeNil)
		So(b.Add("person10", []float64{0.3, 0.4}), ShouldBeNil)
		So(b.Add("person2", []float64{0.5, 0.6}), ShouldBeNil)
		g := b.Build()

		for _, name := range []string{"gallery.json", "gallery.msgpack"} {
			Convey("When saving and loading "+name, func() {
				path := filepath.Join(dir, name)
				So(gallery.Save(path, g), ShouldBeNil)

				loaded, err := gallery.Load(path, gallery.ModeAll)

				Convey("Then contents and order should survive", func() {
					So(err, ShouldBeNil)
					So(loaded.Entries(), ShouldResemble, g.Entries())
				})

				Convey("And loading in mean mode should collapse samples", func() {
					mean, err := gallery.Load(path, gallery.ModeMean)
					So(err, ShouldBeNil)
					So(mean.Size(), ShouldEqual, 2)
					So(mean.Samples("person2"), ShouldEqual, 1)
				})
			})
		}

		Convey("When the file is missing", func() {
			_, err := gallery.Load(filepath.Join(dir, "missing.json"), gallery.ModeAll)
			So(errors.Is(err, gallery.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the file is corrupt", func() {
			path := filepath.Join(dir, "bad.json")
			So(os.WriteFile(path, []byte("{not json"), 0o600), ShouldBeNil)
			_, err := gallery.Load(path, gallery.ModeAll)
			So(errors.Is(err, gallery.ErrDecode), ShouldBeTrue)
		})
	})

	Convey("Given a plain identity -> embedding object", t, func() {
		data := []byte(`{"person10": [1, 0], "person2": [0, 1], "alice": [1, 1]}`)

		g, err := gallery.Decode(data, false, gallery.ModeAll)

		Convey("Then identities should be in natural order and stored as means", func() {
			So(err, ShouldBeNil)
			So(g.Identities(), ShouldResemble, []string{"alice", "person2", "person10"})
			So(g.Mode(), ShouldEqual, gallery.ModeMean)
		})
	})

	Convey("Given empty JSON input", t, func() {
		g, err := gallery.Decode([]byte("  "), false, gallery.ModeAll)
		So(err, ShouldBeNil)
		So(g.Len(), ShouldEqual, 0)
	})
}
