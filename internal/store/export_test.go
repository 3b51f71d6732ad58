package store

var StockOrder = stockOrder
