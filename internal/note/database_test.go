package note

import (
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/billnote/internal/money"
)

var _ = Describe("BoltDB", func() {
	var (
		db  *BoltDB
		now time.Time
	)

	newNote := func(id, owner string) *Note {
		return &Note{
			ID:          id,
			Title:       "Lunch",
			Category:    DefaultCategory,
			Date:        "2024-03-10",
			Currency:    money.VND,
			TotalAmount: decimal.Zero,
			AddedBy:     owner,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}

	newItem := func(noteID, id string, position int, total int64) *Item {
		return &Item{
			ID:         id,
			NoteID:     noteID,
			Name:       "item " + id,
			Amount:     decimal.NewFromInt(1),
			UnitPrice:  decimal.NewFromInt(total),
			TotalPrice: decimal.NewFromInt(total),
			Position:   position,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}

	BeforeEach(func() {
		now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
		var err error
		db, err = NewBoltDB(filepath.Join(GinkgoT().TempDir(), "notes.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("SaveNote and GetNote", func() {
		It("round-trips the note", func() {
			Expect(db.SaveNote(newNote("n1", "alice"))).To(Succeed())

			got, err := db.GetNote("n1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Title).To(Equal("Lunch"))
			Expect(got.AddedBy).To(Equal("alice"))
			Expect(got.Currency).To(Equal(money.VND))
		})

		It("returns ErrNotFound for a missing note", func() {
			_, err := db.GetNote("missing")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})
	})

	Describe("ListNotes", func() {
		It("returns only the owner's notes", func() {
			Expect(db.SaveNote(newNote("n1", "alice"))).To(Succeed())
			Expect(db.SaveNote(newNote("n2", "bob"))).To(Succeed())
			Expect(db.SaveNote(newNote("n3", "alice"))).To(Succeed())

			notes, err := db.ListNotes("alice")
			Expect(err).NotTo(HaveOccurred())
			ids := []string{}
			for _, n := range notes {
				ids = append(ids, n.ID)
			}
			Expect(ids).To(ConsistOf("n1", "n3"))
		})

		It("does not confuse owners sharing a prefix", func() {
			Expect(db.SaveNote(newNote("n1", "al"))).To(Succeed())
			Expect(db.SaveNote(newNote("n2", "alice"))).To(Succeed())

			notes, err := db.ListNotes("al")
			Expect(err).NotTo(HaveOccurred())
			Expect(notes).To(HaveLen(1))
			Expect(notes[0].ID).To(Equal("n1"))
		})
	})

	Describe("items", func() {
		BeforeEach(func() {
			Expect(db.SaveNote(newNote("n1", "alice"))).To(Succeed())
		})

		It("refuses items for a missing note", func() {
			err := db.SaveItem(newItem("missing", "i1", 0, 100))
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})

		It("lists items by position", func() {
			Expect(db.SaveItem(newItem("n1", "b", 1, 100))).To(Succeed())
			Expect(db.SaveItem(newItem("n1", "a", 0, 200))).To(Succeed())

			items, err := db.ListItems("n1")
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(2))
			Expect(items[0].ID).To(Equal("a"))
			Expect(items[1].ID).To(Equal("b"))
		})

		It("returns ErrNotFound for a missing item", func() {
			_, err := db.GetItem("n1", "nope")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			Expect(errors.Is(db.DeleteItem("n1", "nope"), ErrNotFound)).To(BeTrue())
		})
	})

	Describe("RecomputeTotal", func() {
		BeforeEach(func() {
			Expect(db.SaveNote(newNote("n1", "alice"))).To(Succeed())
			Expect(db.SaveItem(newItem("n1", "i1", 0, 20000))).To(Succeed())
			Expect(db.SaveItem(newItem("n1", "i2", 1, 30000))).To(Succeed())
		})

		It("stores the sum of the persisted item totals", func() {
			later := now.Add(time.Hour)
			total, err := db.RecomputeTotal("n1", later)
			Expect(err).NotTo(HaveOccurred())
			Expect(total.Equal(decimal.NewFromInt(50000))).To(BeTrue())

			n, err := db.GetNote("n1")
			Expect(err).NotTo(HaveOccurred())
			Expect(n.TotalAmount.Equal(decimal.NewFromInt(50000))).To(BeTrue())
			Expect(n.UpdatedAt).To(BeTemporally("==", later))
		})

		It("repairs a drifted total and is idempotent", func() {
			n, _ := db.GetNote("n1")
			n.TotalAmount = decimal.NewFromInt(999)
			Expect(db.SaveNote(n)).To(Succeed())

			first, err := db.RecomputeTotal("n1", now)
			Expect(err).NotTo(HaveOccurred())
			second, err := db.RecomputeTotal("n1", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Equal(second)).To(BeTrue())
			Expect(second.Equal(decimal.NewFromInt(50000))).To(BeTrue())
		})

		It("is zero for a note without items", func() {
			Expect(db.SaveNote(newNote("n2", "alice"))).To(Succeed())
			total, err := db.RecomputeTotal("n2", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(total.IsZero()).To(BeTrue())
		})
	})

	Describe("DeleteNote", func() {
		It("cascades to the items and the owner index", func() {
			Expect(db.SaveNote(newNote("n1", "alice"))).To(Succeed())
			Expect(db.SaveNote(newNote("n10", "alice"))).To(Succeed())
			Expect(db.SaveItem(newItem("n1", "i1", 0, 100))).To(Succeed())
			Expect(db.SaveItem(newItem("n10", "i1", 0, 100))).To(Succeed())

			Expect(db.DeleteNote("n1")).To(Succeed())

			_, err := db.GetNote("n1")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			notes, err := db.ListNotes("alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(notes).To(HaveLen(1))

			items, err := db.ListItems("n10")
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(1))
		})

		It("returns ErrNotFound for a missing note", func() {
			Expect(errors.Is(db.DeleteNote("missing"), ErrNotFound)).To(BeTrue())
		})
	})

	Describe("SetArtifactKey", func() {
		It("records the key on the note", func() {
			Expect(db.SaveNote(newNote("n1", "alice"))).To(Succeed())
			Expect(db.SetArtifactKey("n1", "alice/1.png")).To(Succeed())

			n, err := db.GetNote("n1")
			Expect(err).NotTo(HaveOccurred())
			Expect(n.ArtifactKey).To(Equal("alice/1.png"))
		})
	})
})
