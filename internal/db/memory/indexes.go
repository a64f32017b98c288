package memory

import "github.com/hashicorp/go-memdb"

var tblRooms = "rooms"

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tblRooms: {
			Name: tblRooms,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"seq": {
					Name:    "seq",
					Unique:  true,
					Indexer: &memdb.UintFieldIndex{Field: "Seq"},
				},
			},
		},
	},
}
