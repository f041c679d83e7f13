package draft

// Option is a fiscal code with its human readable label
type Option struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// OperationType governs how the receipt is reported to tax infrastructure
type OperationType string

const (
	OperationSell             OperationType = "sell"
	OperationRefund           OperationType = "refund"
	OperationSellCorrection   OperationType = "sell_correction"
	OperationRefundCorrection OperationType = "refund_correction"
)

// VATType is the VAT rate applied to a line item
type VATType string

const (
	VATNone VATType = "none"
	VAT0    VATType = "vat0"
	VAT10   VATType = "vat10"
	VAT110  VATType = "vat110"
	VAT20   VATType = "vat20"
	VAT120  VATType = "vat120"
)

// PaymentObject is the fiscal subject of calculation (tag 1212)
type PaymentObject string

// PaymentMethod is the fiscal payment method (tag 1214)
type PaymentMethod string

// PaymentType is the payment kind code of a payment entry
type PaymentType string

const (
	PaymentCash     PaymentType = "0"
	PaymentCashless PaymentType = "1"
)

// MeasurementUnit is the fiscal measure code of a line item
type MeasurementUnit string

// TaxScheme is the seller's taxation system (SNO)
type TaxScheme string

const DefaultTaxScheme TaxScheme = "usn_income"

var operationTypes = []Option{
	{"sell", "Продажа"},
	{"refund", "Возврат"},
	{"sell_correction", "Коррекция прихода"},
	{"refund_correction", "Коррекция расхода"},
}

var vatTypes = []Option{
	{"none", "Без НДС"},
	{"vat0", "НДС 0%"},
	{"vat10", "НДС 10%"},
	{"vat110", "НДС 10/110"},
	{"vat20", "НДС 20%"},
	{"vat120", "НДС 20/120"},
}

var paymentObjects = []Option{
	{"commodity", "Товар (кроме подакцизного и маркированного)"},
	{"excise", "Подакцизный товар (кроме маркированного)"},
	{"job", "Работа"},
	{"service", "Услуга"},
	{"gambling_bet", "Прием ставок азартных игр"},
	{"gambling_prize", "Выплата выигрыша азартных игр"},
	{"lottery", "Прием денежных средств лотерей"},
	{"lottery_prize", "Выплата выигрыша лотерей"},
	{"intellectual_activity", "Предоставление прав на РИД"},
	{"payment", "Аванс, задаток, предоплата, кредит"},
	{"agent_commission", "Вознаграждение агента"},
	{"composite", "Взнос, пеня, штраф, вознаграждение, бонус"},
	{"another", "Иной предмет расчета"},
	{"property_right", "Передача имущественных прав"},
	{"non_operating_gain", "Внереализационный доход"},
	{"insurance_premium", "Расходы, уменьшающие налог"},
	{"sales_tax", "Торговый сбор"},
	{"resort_fee", "Туристический налог"},
	{"deposit", "Залог"},
	{"expense", "Расходы по ст. 346.16 НК РФ"},
	{"pension_insurance_ip", "Пенсионное страхование ИП (без выплат)"},
	{"pension_insurance_org", "Пенсионное страхование (с выплатами)"},
	{"health_insurance_ip", "Медицинское страхование ИП (без выплат)"},
	{"health_insurance_org", "Медицинское страхование (с выплатами)"},
	{"social_insurance", "Социальное страхование"},
	{"casino_payment", "Прием/выплата казино"},
	{"agent_payment", "Выдача денег банковским агентом"},
	{"marked_excise_no_code", "Подакцизный маркир. без кода"},
	{"marked_excise_with_code", "Подакцизный маркир. с кодом"},
	{"marked_commodity_no_code", "Товар маркир. без кода"},
	{"marked_commodity_with_code", "Товар маркир. с кодом"},
}

var paymentMethods = []Option{
	{"full_prepayment", "Предоплата 100%"},
	{"prepayment", "Предоплата"},
	{"advance", "Аванс"},
	{"full_payment", "Полный расчет"},
	{"partial_payment", "Частичный расчет и кредит"},
	{"credit", "Передача в кредит"},
	{"credit_payment", "Оплата кредита"},
}

var paymentTypes = []Option{
	{"0", "Наличные"},
	{"1", "Безналичный"},
	{"2", "Предоплата (аванс)"},
	{"3", "Последующая оплата (кредит)"},
	{"4", "Иная форма"},
	{"5", "Расширенный аванс"},
	{"6", "Расширенный кредит"},
}

var measurementUnits = []Option{
	{"0", "Штука"},
	{"10", "Грамм"},
	{"11", "Килограмм"},
	{"12", "Тонна"},
	{"20", "Сантиметр"},
	{"21", "Дециметр"},
	{"22", "Метр"},
	{"30", "Кв. см"},
	{"31", "Кв. дм"},
	{"32", "Кв. м"},
	{"40", "Миллилитр"},
	{"41", "Литр"},
	{"42", "Куб. м"},
	{"50", "кВт⋅ч"},
	{"51", "Гкал"},
	{"70", "Сутки"},
	{"71", "Час"},
	{"72", "Минута"},
	{"73", "Секунда"},
	{"80", "Кбайт"},
	{"81", "Мбайт"},
	{"82", "Гбайт"},
	{"83", "Тбайт"},
	{"255", "Иная"},
}

var taxSchemes = []Option{
	{"osn", "ОСН"},
	{"usn_income", "УСН доход"},
	{"usn_income_outcome", "УСН доход-расход"},
	{"envd", "ЕНВД"},
	{"esn", "ЕСН"},
	{"patent", "Патент"},
}

func lookup(options []Option, code string) (string, bool) {
	for _, o := range options {
		if o.Code == code {
			return o.Label, true
		}
	}
	return "", false
}

func labelOr(options []Option, code string) string {
	if label, ok := lookup(options, code); ok {
		return label
	}
	return code
}

// Label returns the Russian name of the operation, or the raw code if unknown
func (o OperationType) Label() string { return labelOr(operationTypes, string(o)) }

// Valid reports whether o is one of the four fiscal operation types
func (o OperationType) Valid() bool {
	_, ok := lookup(operationTypes, string(o))
	return ok
}

func (v VATType) Label() string { return labelOr(vatTypes, string(v)) }

func (v VATType) Valid() bool {
	_, ok := lookup(vatTypes, string(v))
	return ok
}

func (p PaymentObject) Label() string { return labelOr(paymentObjects, string(p)) }

func (p PaymentObject) Valid() bool {
	_, ok := lookup(paymentObjects, string(p))
	return ok
}

func (p PaymentMethod) Label() string { return labelOr(paymentMethods, string(p)) }

func (p PaymentMethod) Valid() bool {
	_, ok := lookup(paymentMethods, string(p))
	return ok
}

// Label falls back to "Безналичный" like the receipt card does for unknown codes
func (p PaymentType) Label() string {
	if label, ok := lookup(paymentTypes, string(p)); ok {
		return label
	}
	return "Безналичный"
}

func (m MeasurementUnit) Label() string { return labelOr(measurementUnits, string(m)) }

func (t TaxScheme) Label() string { return labelOr(taxSchemes, string(t)) }

func (t TaxScheme) Valid() bool {
	_, ok := lookup(taxSchemes, string(t))
	return ok
}

// Catalog lists every fiscal code the editor offers
type Catalog struct {
	OperationTypes   []Option `json:"operation_types"`
	VATTypes         []Option `json:"vat_types"`
	PaymentObjects   []Option `json:"payment_objects"`
	PaymentMethods   []Option `json:"payment_methods"`
	PaymentTypes     []Option `json:"payment_types"`
	MeasurementUnits []Option `json:"measurement_units"`
	TaxSchemes       []Option `json:"tax_schemes"`
}

// FiscalCatalog returns the code lists for the edit controls
func FiscalCatalog() Catalog {
	return Catalog{
		OperationTypes:   operationTypes,
		VATTypes:         vatTypes,
		PaymentObjects:   paymentObjects,
		PaymentMethods:   paymentMethods,
		PaymentTypes:     paymentTypes,
		MeasurementUnits: measurementUnits,
		TaxSchemes:       taxSchemes,
	}
}
