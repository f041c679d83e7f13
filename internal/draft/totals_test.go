package draft

import (
	"github.com/shopspring/decimal"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func mustDecode(raw string) Document {
	doc, err := Decode([]byte(raw))
	Expect(err).NotTo(HaveOccurred())
	return doc
}

var _ = Describe("Document.RecomputeTotals", func() {
	var (
		doc    Document
		result Document
	)

	JustBeforeEach(func() {
		result = doc.RecomputeTotals()
	})

	When("the preview has one item and no payments", func() {
		BeforeEach(func() {
			doc = mustDecode(`{"items":[{"name":"consultation","price":5000,"quantity":1}],"total":5000}`)
		})

		It("should keep the total", func() {
			Expect(result.Total().Equal(decimal.NewFromInt(5000))).To(BeTrue())
		})

		It("should add a single cashless payment for the total", func() {
			payments := result.Payments()
			Expect(payments).To(HaveLen(1))
			Expect(payments[0].Type).To(Equal(PaymentCashless))
			Expect(payments[0].Sum.Equal(decimal.NewFromInt(5000))).To(BeTrue())
		})
	})

	When("an item price was edited", func() {
		BeforeEach(func() {
			base := mustDecode(`{"items":[{"name":"consultation","price":5000,"quantity":1}],"total":5000,"payments":[{"type":"1","sum":5000}]}`)
			var err error
			doc, err = base.SetField(mustPath("items.0.price"), 6000)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should recompute the total", func() {
			Expect(result.Total().Equal(decimal.NewFromInt(6000))).To(BeTrue())
		})

		It("should update the single payment", func() {
			Expect(result.Payments()[0].Sum.Equal(decimal.NewFromInt(6000))).To(BeTrue())
		})

		It("should keep the payment type", func() {
			Expect(result.Payments()[0].Type).To(Equal(PaymentType("1")))
		})
	})

	When("prices need rounding", func() {
		BeforeEach(func() {
			doc = mustDecode(`{"items":[{"price":"0.335","quantity":3},{"price":1.005,"quantity":1}]}`)
		})

		It("should round half-up to cents", func() {
			// 1.005 + 1.005 = 2.010
			Expect(result.Total().String()).To(Equal("2.01"))
		})
	})

	When("an amount lands exactly on half a kopeck", func() {
		BeforeEach(func() {
			doc = mustDecode(`{"items":[{"price":"0.125","quantity":1}]}`)
		})

		It("should round up", func() {
			Expect(result.Total().String()).To(Equal("0.13"))
		})
	})

	When("quantities are missing or zero", func() {
		BeforeEach(func() {
			doc = mustDecode(`{"items":[{"price":100},{"price":50,"quantity":0},{"price":"abc","quantity":2}]}`)
		})

		It("should count them as one and bad prices as zero", func() {
			Expect(result.Total().Equal(decimal.NewFromInt(150))).To(BeTrue())
		})
	})

	When("there are several payments", func() {
		BeforeEach(func() {
			doc = mustDecode(`{"items":[{"price":300,"quantity":1}],"payments":[{"type":"0","sum":100},{"type":"1","sum":100}]}`)
		})

		It("should update the total", func() {
			Expect(result.Total().Equal(decimal.NewFromInt(300))).To(BeTrue())
		})

		It("should leave the payments for the user", func() {
			payments := result.Payments()
			Expect(payments).To(HaveLen(2))
			Expect(payments[0].Sum.Equal(decimal.NewFromInt(100))).To(BeTrue())
			Expect(payments[1].Sum.Equal(decimal.NewFromInt(100))).To(BeTrue())
		})

		It("should report the mismatch", func() {
			Expect(result.PaymentsBalance().Balanced).To(BeFalse())
		})
	})

	When("items are empty", func() {
		BeforeEach(func() {
			doc = mustDecode(`{"items":[],"total":700,"payments":[{"type":"1","sum":700}]}`)
		})

		It("should not touch the total", func() {
			Expect(result.Total().Equal(decimal.NewFromInt(700))).To(BeTrue())
		})
	})

	When("items are missing", func() {
		BeforeEach(func() {
			doc = mustDecode(`{"total":700}`)
		})

		It("should return the document unchanged", func() {
			Expect(result).To(Equal(doc))
		})
	})

	It("should not modify the receiver", func() {
		doc = mustDecode(`{"items":[{"price":10,"quantity":2}],"payments":[{"type":"1","sum":1}]}`)
		out := doc.RecomputeTotals()
		Expect(out.Total().Equal(decimal.NewFromInt(20))).To(BeTrue())
		Expect(doc.Payments()[0].Sum.Equal(decimal.NewFromInt(1))).To(BeTrue())
		_, hasTotal := doc["total"]
		Expect(hasTotal).To(BeFalse())
	})
})

var _ = Describe("Document.PaymentsBalance", func() {
	It("should tolerate differences below one kopeck", func() {
		doc := mustDecode(`{"total":100,"payments":[{"type":"0","sum":"60.004"},{"type":"1","sum":40}]}`)
		Expect(doc.PaymentsBalance().Balanced).To(BeTrue())
	})

	It("should flag a difference of one kopeck", func() {
		doc := mustDecode(`{"total":100,"payments":[{"type":"0","sum":"59.99"},{"type":"1","sum":40}]}`)
		Expect(doc.PaymentsBalance().Balanced).To(BeFalse())
	})
})

var _ = Describe("Document.Validate", func() {
	It("should return no issues for a clean draft", func() {
		doc := mustDecode(`{"operation_type":"sell","items":[{"price":10,"quantity":1}],"total":10,"payments":[{"type":"1","sum":10}]}`)
		Expect(doc.Validate()).To(BeEmpty())
	})

	It("should warn about bad values", func() {
		doc := mustDecode(`{"operation_type":"gift","items":[{"price":-1,"quantity":0}],"total":10,"payments":[{"type":"1","sum":5}]}`)
		paths := []string{}
		for _, issue := range doc.Validate() {
			paths = append(paths, issue.Path)
		}
		Expect(paths).To(ConsistOf("operation_type", "items.0.price", "items.0.quantity", "payments"))
	})
})

var _ = Describe("typed views", func() {
	var doc Document

	BeforeEach(func() {
		doc = mustDecode(`{
			"operation_type": "refund",
			"items": [{"name":"Кофе","price":350,"quantity":2,"measurement_unit":11,"vat":{"type":"vat20"},"payment_object":"service"}],
			"client": {"email":"a@b.ru","phone":"+79991234567"},
			"company": {"inn":"7701234567","sno":"osn","payment_address":"shop.ru"},
			"bulk_count": 3,
			"original_uuid": "abc-123"
		}`)
	})

	It("should expose items with defaults", func() {
		items := doc.Items()
		Expect(items).To(HaveLen(1))
		Expect(items[0].Name).To(Equal("Кофе"))
		Expect(items[0].MeasurementUnit).To(Equal(MeasurementUnit("11")))
		Expect(items[0].MeasurementUnit.Label()).To(Equal("Килограмм"))
		Expect(items[0].VAT).To(Equal(VAT20))
		Expect(items[0].PaymentMethod).To(Equal(PaymentMethod("full_payment")))
		Expect(items[0].Amount().Equal(decimal.NewFromInt(700))).To(BeTrue())
	})

	It("should expose the operation type", func() {
		Expect(doc.OperationType()).To(Equal(OperationRefund))
		Expect(doc.OperationType().Label()).To(Equal("Возврат"))
	})

	It("should expose client and company", func() {
		Expect(doc.Client().Phone).To(Equal("+79991234567"))
		Expect(doc.Company().TaxScheme).To(Equal(TaxScheme("osn")))
		Expect(doc.Company().PaymentAddress).To(Equal("shop.ru"))
	})

	It("should expose the bulk copy request", func() {
		bulk, ok := doc.Bulk()
		Expect(ok).To(BeTrue())
		Expect(bulk).To(Equal(BulkCopy{Count: 3, OriginalReceiptID: "abc-123"}))
	})

	It("should not report bulk mode without an original receipt", func() {
		delete(doc, "original_uuid")
		_, ok := doc.Bulk()
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("FiscalCatalog", func() {
	It("should list all code tables", func() {
		c := FiscalCatalog()
		Expect(c.OperationTypes).To(HaveLen(4))
		Expect(c.PaymentMethods).To(HaveLen(7))
		Expect(c.PaymentTypes).To(HaveLen(7))
		Expect(c.PaymentObjects).To(HaveLen(31))
		Expect(c.VATTypes).To(HaveLen(6))
	})

	It("should fall back to the code for unknown labels", func() {
		Expect(OperationType("gift").Label()).To(Equal("gift"))
		Expect(PaymentType("9").Label()).To(Equal("Безналичный"))
	})
})
