package database

import (
	"reflect"
	"strings"

	"coworking-alliance-backend/pkg/models"
)

// immutableColumns 更新时永远不写的列
var immutableColumns = map[string]bool{
	"id":         true,
	"created_at": true,
}

// recordColumns 按 db 标签展开记录的列与值（含嵌入的 Base）
func recordColumns(rec models.Record) ([]string, []interface{}) {
	v := reflect.ValueOf(rec)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	var cols []string
	var vals []interface{}
	collectColumns(v, &cols, &vals)
	return cols, vals
}

func collectColumns(v reflect.Value, cols *[]string, vals *[]interface{}) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			collectColumns(v.Field(i), cols, vals)
			continue
		}
		if !f.IsExported() {
			continue
		}
		tag := strings.Split(f.Tag.Get("db"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}
		*cols = append(*cols, tag)
		*vals = append(*vals, v.Field(i).Interface())
	}
}

// updateMap 更新语句的 SET 部分
func updateMap(rec models.Record) map[string]interface{} {
	cols, vals := recordColumns(rec)
	out := make(map[string]interface{}, len(cols))
	for i, c := range cols {
		if immutableColumns[c] {
			continue
		}
		out[c] = vals[i]
	}
	return out
}

// tableOf 从 *[]T 或 *[]*T 推出表名
func tableOf(dest interface{}) string {
	t := reflect.TypeOf(dest)
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	if rec, ok := reflect.New(t).Interface().(models.Record); ok {
		return rec.TableName()
	}
	return ""
}
