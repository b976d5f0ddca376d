// Package gpkg reads polygon layers from GeoPackages.
package gpkg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/gpkg"

	"github.com/pdok/selfoverlap/geometry"
	"github.com/pdok/selfoverlap/layer"
)

type column struct {
	cid       int
	name      string
	ctype     string
	notnull   int
	dfltValue *string
	pk        int
}

// Table describes one feature table of a GeoPackage.
type Table struct {
	Name           string
	GeometryColumn string
	Kind           geometry.Kind
	// pk is the integer primary key column, rowid when the table has none.
	pk    string
	rtree string
}

// Source is a GeoPackage on disk. Every OpenLayer call opens its own handle.
type Source struct {
	Path string
}

// Tables lists the feature tables of the GeoPackage.
func (s Source) Tables(ctx context.Context) ([]Table, error) {
	h, err := s.open()
	if err != nil {
		return nil, err
	}
	defer h.Close()

	rows, err := h.QueryContext(ctx, `SELECT table_name FROM gpkg_geometry_columns ORDER BY table_name;`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables of %s: %w", s.Path, err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to read table name: %w", err)
		}
		names = append(names, name)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		t, err := getTable(ctx, h, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func (s Source) OpenLayer(ctx context.Context, name string, filter *geom.Extent) (layer.Layer, error) {
	h, err := s.open()
	if err != nil {
		return nil, err
	}
	t, err := getTable(ctx, h, name)
	if err != nil {
		h.Close()
		return nil, err
	}

	l := &gpkgLayer{ctx: ctx, handle: h, table: t}
	l.query, l.args = t.selectSQL(filter)
	// without an rtree the filter is applied to the decoded geometries
	if filter != nil && t.rtree == "" {
		f := *filter
		l.filter = &f
	}
	return l, nil
}

func (s Source) open() (*gpkg.Handle, error) {
	// gpkg.Open creates missing files
	if _, err := os.Stat(s.Path); err != nil {
		return nil, fmt.Errorf("error opening source GeoPackage: %w", err)
	}
	h, err := gpkg.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("error opening GeoPackage %s: %w", s.Path, err)
	}
	return h, nil
}

// getTable collects the geometry column, primary key and spatial index of a table
func getTable(ctx context.Context, h *gpkg.Handle, name string) (Table, error) {
	t := Table{Name: name}
	var gtype string
	row := h.QueryRowContext(ctx,
		`SELECT column_name, geometry_type_name FROM gpkg_geometry_columns WHERE table_name = ?;`, name)
	err := row.Scan(&t.GeometryColumn, &gtype)
	if errors.Is(err, sql.ErrNoRows) {
		return t, fmt.Errorf("%w: %q", layer.ErrLayerNotFound, name)
	}
	if err != nil {
		return t, fmt.Errorf("failed to read geometry column of %s: %w", name, err)
	}
	t.Kind = geometry.KindFromName(gtype)

	columns, err := getTableColumns(ctx, h, name)
	if err != nil {
		return t, err
	}
	t.pk = "rowid"
	for _, c := range columns {
		if c.pk == 1 {
			t.pk = c.name
			break
		}
	}

	rtree := "rtree_" + name + "_" + t.GeometryColumn
	var count int
	err = h.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE name = ?;`, rtree).Scan(&count)
	if err != nil {
		return t, fmt.Errorf("failed to look up spatial index of %s: %w", name, err)
	}
	if count > 0 {
		t.rtree = rtree
	}
	return t, nil
}

// getTableColumns collects the column information of a given table
func getTableColumns(ctx context.Context, h *gpkg.Handle, table string) ([]column, error) {
	rows, err := h.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info("%v");`, table))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []column
	for rows.Next() {
		var c column
		err := rows.Scan(&c.cid, &c.name, &c.ctype, &c.notnull, &c.dfltValue, &c.pk)
		if err != nil {
			return nil, fmt.Errorf("error getting the column information: %w", err)
		}
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

// selectSQL builds the SELECT statement that streams id and geometry,
// restricted by the rtree when there is a filter and an rtree
func (t Table) selectSQL(filter *geom.Extent) (string, []any) {
	if filter == nil || t.rtree == "" {
		return fmt.Sprintf(`SELECT "%v", "%v" FROM "%v" ORDER BY "%v";`, t.pk, t.GeometryColumn, t.Name, t.pk), nil
	}
	query := fmt.Sprintf(`SELECT t."%v", t."%v" FROM "%v" t JOIN "%v" r ON t."%v" = r.id `+
		`WHERE r.minx <= ? AND r.maxx >= ? AND r.miny <= ? AND r.maxy >= ? ORDER BY t."%v";`,
		t.pk, t.GeometryColumn, t.Name, t.rtree, t.pk, t.pk)
	return query, []any{filter.MaxX(), filter.MinX(), filter.MaxY(), filter.MinY()}
}

type featureGPKG struct {
	id       int64
	geometry geom.Geometry
}

func (f featureGPKG) ID() int64 {
	return f.id
}

func (f featureGPKG) Geometry() geom.Geometry {
	return f.geometry
}

type gpkgLayer struct {
	ctx    context.Context
	handle *gpkg.Handle
	table  Table
	query  string
	args   []any
	// rows is opened by the first NextFeature, so that FeatureCount and
	// Extent never compete with an open cursor
	rows   *sql.Rows
	filter *geom.Extent
}

func (l *gpkgLayer) NextFeature() (layer.Feature, error) {
	if l.rows == nil {
		rows, err := l.handle.QueryContext(l.ctx, l.query, l.args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", l.table.Name, err)
		}
		l.rows = rows
	}
	for l.rows.Next() {
		var (
			id   int64
			blob []byte
		)
		if err := l.rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("err reading row values: %w", err)
		}
		f := featureGPKG{id: id}
		if len(blob) > 0 {
			sb, err := gpkg.DecodeGeometry(blob)
			if err != nil {
				log.Printf("    could not decode the geometry of %s %d: %v", l.table.Name, id, err)
			} else {
				f.geometry = sb.Geometry
			}
		}
		if l.filter != nil {
			ext, ok := geometry.ExtentOf(f.geometry)
			if !ok || !geometry.ExtentsIntersect(ext, *l.filter) {
				continue
			}
		}
		return f, nil
	}
	if err := l.rows.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (l *gpkgLayer) FeatureCount() (int, error) {
	var count int
	err := l.handle.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM "%v";`, l.table.Name)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count features of %s: %w", l.table.Name, err)
	}
	return count, nil
}

func (l *gpkgLayer) Extent() (geom.Extent, error) {
	if l.table.rtree != "" {
		var minX, minY, maxX, maxY sql.NullFloat64
		err := l.handle.QueryRow(fmt.Sprintf(`SELECT MIN(minx), MIN(miny), MAX(maxx), MAX(maxy) FROM "%v";`, l.table.rtree)).
			Scan(&minX, &minY, &maxX, &maxY)
		if err != nil {
			return geom.Extent{}, fmt.Errorf("failed to read extent of %s: %w", l.table.Name, err)
		}
		return geom.Extent{minX.Float64, minY.Float64, maxX.Float64, maxY.Float64}, nil
	}
	return l.scanExtent()
}

func (l *gpkgLayer) scanExtent() (geom.Extent, error) {
	rows, err := l.handle.Query(fmt.Sprintf(`SELECT "%v" FROM "%v";`, l.table.GeometryColumn, l.table.Name))
	if err != nil {
		return geom.Extent{}, fmt.Errorf("failed to scan extent of %s: %w", l.table.Name, err)
	}
	defer rows.Close()

	var (
		extent geom.Extent
		found  bool
	)
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return geom.Extent{}, err
		}
		if len(blob) == 0 {
			continue
		}
		sb, err := gpkg.DecodeGeometry(blob)
		if err != nil {
			continue
		}
		e, ok := geometry.ExtentOf(sb.Geometry)
		if !ok {
			continue
		}
		if !found {
			extent, found = e, true
			continue
		}
		extent.Add(&e)
	}
	return extent, rows.Err()
}

func (l *gpkgLayer) GeometryKind() geometry.Kind {
	return l.table.Kind
}

func (l *gpkgLayer) Close() error {
	var rowsErr error
	if l.rows != nil {
		rowsErr = l.rows.Close()
	}
	return errors.Join(rowsErr, l.handle.Close())
}
