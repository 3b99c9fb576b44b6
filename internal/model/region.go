package model

// Region はアフリカの地域区分を表す。
type Region struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Regions は利用可能な地域の一覧。
var Regions = []Region{
	{ID: "west-africa", Name: "West Africa"},
	{ID: "east-africa", Name: "East Africa"},
	{ID: "north-africa", Name: "North Africa"},
	{ID: "central-africa", Name: "Central Africa"},
	{ID: "southern-africa", Name: "Southern Africa"},
}
