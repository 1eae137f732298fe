package testutil

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/docbridge/internal/schema"
)

func column(name string, typ schema.Type) schema.Column {
	return schema.Column{Name: name, Type: typ, Nullable: true, Searchable: true, Selectable: true}
}

func key(columns ...string) *schema.PrimaryKey {
	return &schema.PrimaryKey{Columns: columns}
}

func fk(references string, columns ...string) schema.ForeignKey {
	return schema.ForeignKey{Columns: columns, References: references}
}

// NorthwindTables returns the fixture schema: a slice of the Northwind
// sample database plus tables exercising composite keys and a
// self-embedding table.
//
//	Customers     STANDALONE  CustomerID
//	Suppliers     STANDALONE  SupplierID
//	Categories    EMBEDDABLE  CategoryID; Picture is neither searchable nor selectable
//	Products      EMBEDDABLE  ProductID; SupplierID -> Suppliers, CategoryID -> Categories
//	Employees     STANDALONE  EmployeeID; ReportsTo -> Employees
//	Orders        STANDALONE  OrderID; ShipCountry stored at ship.country
//	OrderDetails  MERGE       (OrderID, ProductID) inside Orders
//	Inventory     STANDALONE  (WarehouseID, SKU)
//	StockMoves    STANDALONE  MoveID; "stock" (WarehouseID, SKU) -> Inventory
//	Regions       EMBEDDABLE  RegionID; ParentRegionID -> Regions
func NorthwindTables() []schema.Table {
	picture := column("Picture", schema.TypeBlob)
	picture.Searchable = false
	picture.Selectable = false

	shipCountry := column("ShipCountry", schema.TypeString)
	shipCountry.NameInSource = "ship.country"

	notNull := func(c schema.Column) schema.Column {
		c.Nullable = false
		return c
	}

	return []schema.Table{
		{
			Name: "Customers",
			Columns: []schema.Column{
				notNull(column("CustomerID", schema.TypeString)),
				column("CompanyName", schema.TypeString),
				column("City", schema.TypeString),
				column("Country", schema.TypeString),
				column("Region", schema.TypeString),
			},
			PrimaryKey: key("CustomerID"),
		},
		{
			Name: "Suppliers",
			Columns: []schema.Column{
				notNull(column("SupplierID", schema.TypeInteger)),
				column("CompanyName", schema.TypeString),
				column("Country", schema.TypeString),
			},
			PrimaryKey: key("SupplierID"),
		},
		{
			Name: "Categories",
			Kind: schema.Embeddable,
			Columns: []schema.Column{
				notNull(column("CategoryID", schema.TypeInteger)),
				column("CategoryName", schema.TypeString),
				column("Description", schema.TypeString),
				picture,
			},
			PrimaryKey: key("CategoryID"),
		},
		{
			Name: "Products",
			Kind: schema.Embeddable,
			Columns: []schema.Column{
				notNull(column("ProductID", schema.TypeInteger)),
				column("ProductName", schema.TypeString),
				column("SupplierID", schema.TypeInteger),
				column("CategoryID", schema.TypeInteger),
				column("UnitPrice", schema.TypeDouble),
				column("UnitsInStock", schema.TypeInteger),
				column("Discontinued", schema.TypeBoolean),
			},
			PrimaryKey:  key("ProductID"),
			ForeignKeys: []schema.ForeignKey{fk("Suppliers", "SupplierID"), fk("Categories", "CategoryID")},
		},
		{
			Name: "Employees",
			Columns: []schema.Column{
				notNull(column("EmployeeID", schema.TypeInteger)),
				column("LastName", schema.TypeString),
				column("FirstName", schema.TypeString),
				column("Title", schema.TypeString),
				column("ReportsTo", schema.TypeInteger),
			},
			PrimaryKey:  key("EmployeeID"),
			ForeignKeys: []schema.ForeignKey{fk("Employees", "ReportsTo")},
		},
		{
			Name: "Orders",
			Columns: []schema.Column{
				notNull(column("OrderID", schema.TypeInteger)),
				column("CustomerID", schema.TypeString),
				column("EmployeeID", schema.TypeInteger),
				column("OrderDate", schema.TypeTimestamp),
				column("ShipCity", schema.TypeString),
				shipCountry,
				column("Freight", schema.TypeDouble),
			},
			PrimaryKey:  key("OrderID"),
			ForeignKeys: []schema.ForeignKey{fk("Customers", "CustomerID"), fk("Employees", "EmployeeID")},
		},
		{
			Name:   "OrderDetails",
			Kind:   schema.Merge,
			Parent: "Orders",
			Columns: []schema.Column{
				notNull(column("OrderID", schema.TypeInteger)),
				notNull(column("ProductID", schema.TypeInteger)),
				column("UnitPrice", schema.TypeDouble),
				column("Quantity", schema.TypeInteger),
				column("Discount", schema.TypeDouble),
			},
			PrimaryKey:  key("OrderID", "ProductID"),
			ForeignKeys: []schema.ForeignKey{fk("Orders", "OrderID"), fk("Products", "ProductID")},
		},
		{
			Name: "Inventory",
			Columns: []schema.Column{
				notNull(column("WarehouseID", schema.TypeString)),
				notNull(column("SKU", schema.TypeString)),
				column("Quantity", schema.TypeInteger),
			},
			PrimaryKey: key("WarehouseID", "SKU"),
		},
		{
			Name: "StockMoves",
			Columns: []schema.Column{
				notNull(column("MoveID", schema.TypeInteger)),
				column("WarehouseID", schema.TypeString),
				column("SKU", schema.TypeString),
				column("Qty", schema.TypeInteger),
			},
			PrimaryKey: key("MoveID"),
			ForeignKeys: []schema.ForeignKey{{
				Name: "stock", Columns: []string{"WarehouseID", "SKU"}, References: "Inventory",
			}},
		},
		{
			Name: "Regions",
			Kind: schema.Embeddable,
			Columns: []schema.Column{
				notNull(column("RegionID", schema.TypeInteger)),
				column("RegionName", schema.TypeString),
				column("ParentRegionID", schema.TypeInteger),
			},
			PrimaryKey:  key("RegionID"),
			ForeignKeys: []schema.ForeignKey{fk("Regions", "ParentRegionID")},
		},
	}
}

// Northwind builds the fixture model. It panics if the fixture is invalid.
func Northwind() *schema.Model {
	m, err := schema.NewModel(NorthwindTables()...)
	if err != nil {
		panic("testutil: invalid Northwind fixture: " + err.Error())
	}
	return m
}

func ref(collection string, id any) bson.D {
	return bson.D{{Key: "$ref", Value: collection}, {Key: "$id", Value: id}}
}

// OrderDate is the date stored on every fixture order.
var OrderDate = time.Date(1996, time.July, 4, 0, 0, 0, 0, time.UTC)

// NorthwindDocs returns the fixture documents by collection, stored the
// way the translator writes them.
func NorthwindDocs() map[string][]bson.D {
	beverages := bson.D{
		{Key: "_id", Value: int64(1)},
		{Key: "CategoryName", Value: "Beverages"},
		{Key: "Description", Value: "Soft drinks, coffees, teas, beers, and ales"},
	}
	condiments := bson.D{
		{Key: "_id", Value: int64(2)},
		{Key: "CategoryName", Value: "Condiments"},
		{Key: "Description", Value: "Sweet and savory sauces, relishes, spreads, and seasonings"},
	}

	product := func(id int64, name string, supplier int64, category bson.D, price float64, stock int64) bson.D {
		catID, _ := lookup(category, "_id")
		return bson.D{
			{Key: "_id", Value: id},
			{Key: "ProductName", Value: name},
			{Key: "SupplierID", Value: ref("Suppliers", supplier)},
			{Key: "CategoryID", Value: ref("Categories", catID)},
			{Key: "Categories", Value: cloneDoc(category)},
			{Key: "UnitPrice", Value: price},
			{Key: "UnitsInStock", Value: stock},
			{Key: "Discontinued", Value: false},
		}
	}
	chai := product(1, "Chai", 1, beverages, 18.0, 39)
	chang := product(2, "Chang", 1, beverages, 19.0, 17)
	aniseed := product(3, "Aniseed Syrup", 1, condiments, 10.0, 13)
	cajun := product(4, "Chef Anton's Cajun Seasoning", 2, condiments, 22.0, 53)

	detail := func(p bson.D, price float64, qty int64, discount float64) bson.D {
		id, _ := lookup(p, "_id")
		return bson.D{
			{Key: "ProductID", Value: ref("Products", id)},
			{Key: "Products", Value: cloneDoc(p)},
			{Key: "UnitPrice", Value: price},
			{Key: "Quantity", Value: qty},
			{Key: "Discount", Value: discount},
		}
	}
	order := func(id int64, customer string, employee int64, city, country string, freight float64, details ...bson.D) bson.D {
		lines := bson.A{}
		for _, d := range details {
			lines = append(lines, d)
		}
		return bson.D{
			{Key: "_id", Value: id},
			{Key: "CustomerID", Value: ref("Customers", customer)},
			{Key: "EmployeeID", Value: ref("Employees", employee)},
			{Key: "OrderDate", Value: primitive.NewDateTimeFromTime(OrderDate)},
			{Key: "ShipCity", Value: city},
			{Key: "ship", Value: bson.D{{Key: "country", Value: country}}},
			{Key: "Freight", Value: freight},
			{Key: "OrderDetails", Value: lines},
		}
	}

	europe := bson.D{
		{Key: "_id", Value: int64(1)},
		{Key: "RegionName", Value: "Europe"},
		{Key: "ParentRegionID", Value: nil},
		{Key: "Regions", Value: nil},
	}

	return map[string][]bson.D{
		"Customers": {
			{{Key: "_id", Value: "ALFKI"}, {Key: "CompanyName", Value: "Alfreds Futterkiste"}, {Key: "City", Value: "Berlin"}, {Key: "Country", Value: "Germany"}, {Key: "Region", Value: nil}},
			{{Key: "_id", Value: "ANATR"}, {Key: "CompanyName", Value: "Ana Trujillo Emparedados y helados"}, {Key: "City", Value: "México D.F."}, {Key: "Country", Value: "Mexico"}, {Key: "Region", Value: nil}},
			{{Key: "_id", Value: "AROUT"}, {Key: "CompanyName", Value: "Around the Horn"}, {Key: "City", Value: "London"}, {Key: "Country", Value: "UK"}, {Key: "Region", Value: "Essex"}},
		},
		"Suppliers": {
			{{Key: "_id", Value: int64(1)}, {Key: "CompanyName", Value: "Exotic Liquids"}, {Key: "Country", Value: "UK"}},
			{{Key: "_id", Value: int64(2)}, {Key: "CompanyName", Value: "New Orleans Cajun Delights"}, {Key: "Country", Value: "USA"}},
		},
		"Categories": {beverages, condiments},
		"Products":   {chai, chang, aniseed, cajun},
		"Employees": {
			{{Key: "_id", Value: int64(1)}, {Key: "LastName", Value: "Davolio"}, {Key: "FirstName", Value: "Nancy"}, {Key: "Title", Value: "Sales Representative"}, {Key: "ReportsTo", Value: ref("Employees", int64(2))}},
			{{Key: "_id", Value: int64(2)}, {Key: "LastName", Value: "Fuller"}, {Key: "FirstName", Value: "Andrew"}, {Key: "Title", Value: "Vice President, Sales"}, {Key: "ReportsTo", Value: nil}},
		},
		"Orders": {
			order(10248, "ALFKI", 1, "Berlin", "Germany", 32.38,
				detail(chai, 18.0, 12, 0), detail(chang, 19.0, 10, 0)),
			order(10249, "ANATR", 2, "México D.F.", "Mexico", 11.61,
				detail(aniseed, 10.0, 5, 0)),
			order(10250, "AROUT", 1, "London", "UK", 65.83,
				detail(chai, 18.0, 3, 0.1), detail(cajun, 22.0, 20, 0)),
		},
		"Inventory": {
			{{Key: "_id", Value: bson.D{{Key: "WarehouseID", Value: "W1"}, {Key: "SKU", Value: "A-1"}}}, {Key: "Quantity", Value: int64(40)}},
			{{Key: "_id", Value: bson.D{{Key: "WarehouseID", Value: "W2"}, {Key: "SKU", Value: "A-1"}}}, {Key: "Quantity", Value: int64(7)}},
		},
		"StockMoves": {
			{{Key: "_id", Value: int64(1)}, {Key: "stock", Value: ref("Inventory", bson.D{{Key: "WarehouseID", Value: "W1"}, {Key: "SKU", Value: "A-1"}})}, {Key: "Qty", Value: int64(5)}},
		},
		"Regions": {
			europe,
			{{Key: "_id", Value: int64(2)}, {Key: "RegionName", Value: "Western Europe"}, {Key: "ParentRegionID", Value: ref("Regions", int64(1))}, {Key: "Regions", Value: cloneDoc(europe)}},
		},
	}
}

// NewNorthwindStore returns a MemStore seeded with NorthwindDocs.
func NewNorthwindStore() *MemStore {
	s := NewMemStore()
	for collection, docs := range NorthwindDocs() {
		s.Seed(collection, docs...)
	}
	return s
}
