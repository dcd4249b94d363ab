package command

import (
	"net"
	"testing"

	"github.com/takapi327/ldbc/mysql/resultset"
	"github.com/takapi327/ldbc/mysql/wire"
)

const testCaps = wire.ClientProtocol41 | wire.ClientSecureConnection | wire.ClientDeprecateEOF

func writeOK(sc *wire.Conn, seq byte, affectedRows, lastInsertID uint64) {
	w := wire.NewWriter()
	w.Int1(0x00)
	w.LenencInt(affectedRows)
	w.LenencInt(lastInsertID)
	w.Int2(2) // status flags
	w.Int2(0) // warnings
	sc.WritePacket(w.Bytes(), seq)
}

func writeErr(sc *wire.Conn, seq byte, code uint16, sqlState, message string) {
	w := wire.NewWriter()
	w.Int1(0xff)
	w.Int2(code)
	w.Raw([]byte("#"))
	w.Raw([]byte(sqlState))
	w.Raw([]byte(message))
	sc.WritePacket(w.Bytes(), seq)
}

func writeColumnDef(sc *wire.Conn, seq byte, name string, typ resultset.FieldType) byte {
	w := wire.NewWriter()
	w.LenencString([]byte("def"))
	w.LenencString([]byte("testdb"))
	w.LenencString([]byte("t"))
	w.LenencString([]byte("t"))
	w.LenencString([]byte(name))
	w.LenencString([]byte(name))
	w.LenencInt(0x0c)
	w.Int2(33)
	w.Int4(100)
	w.Int1(byte(typ))
	w.Int2(0)
	w.Int1(0)
	w.Zero(2)
	next, _ := sc.WritePacket(w.Bytes(), seq)
	return next
}

func TestQuerySimpleOK(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		sc := wire.NewConn(server)
		payload, _, err := sc.ReadPacket()
		if err != nil || ID(payload[0]) != ComQuery {
			t.Errorf("server: unexpected request: %v %v", payload, err)
			return
		}
		writeOK(sc, 1, 1, 42)
	}()

	cc := wire.NewConn(client)
	res, err := Query(cc, testCaps, "INSERT INTO t VALUES (1)", false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OK == nil || res.OK.AffectedRows != 1 || res.OK.LastInsertID != 42 {
		t.Errorf("OK result = %+v", res.OK)
	}
}

func TestQueryResultSet(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		sc := wire.NewConn(server)
		if _, _, err := sc.ReadPacket(); err != nil {
			t.Errorf("server read: %v", err)
			return
		}
		w := wire.NewWriter()
		w.LenencInt(2)
		seq, _ := sc.WritePacket(w.Bytes(), 1)
		seq = writeColumnDef(sc, seq, "id", resultset.TypeLong)
		seq = writeColumnDef(sc, seq, "name", resultset.TypeVarString)

		rowWriter := wire.NewWriter()
		rowWriter.LenencString([]byte("7"))
		rowWriter.LenencString([]byte("hello"))
		seq, _ = sc.WritePacket(rowWriter.Bytes(), seq)
		writeOK(sc, seq, 0, 0) // DEPRECATE_EOF: OK terminates the row stream
	}()

	cc := wire.NewConn(client)
	res, err := Query(cc, testCaps, "SELECT id, name FROM t", false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Columns) != 2 || len(res.Rows) != 1 {
		t.Fatalf("got %d columns, %d rows", len(res.Columns), len(res.Rows))
	}
	if string(res.Rows[0].Values[0]) != "7" || string(res.Rows[0].Values[1]) != "hello" {
		t.Errorf("row = %+v", res.Rows[0])
	}
}

func TestQueryServerError(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		sc := wire.NewConn(server)
		sc.ReadPacket()
		writeErr(sc, 1, 1146, "42S02", "Table 'x' doesn't exist")
	}()

	cc := wire.NewConn(client)
	_, err := Query(cc, testCaps, "SELECT * FROM x", false, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	se, ok := err.(*ServerError)
	if !ok {
		t.Fatalf("error type = %T", err)
	}
	if se.Code != 1146 || se.SQLState != "42S02" {
		t.Errorf("server error = %+v", se)
	}
}

func TestQueryLocalInfileRejectedByDefault(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		sc := wire.NewConn(server)
		sc.ReadPacket()
		w := wire.NewWriter()
		w.Int1(0xfb)
		w.Raw([]byte("/etc/passwd"))
		seq, _ := sc.WritePacket(w.Bytes(), 1)
		// client rejects with an empty packet; server replies with ERR
		if _, _, err := sc.ReadPacket(); err != nil {
			t.Errorf("server: reading rejection: %v", err)
		}
		writeErr(sc, seq, 1148, "42000", "The used command is not allowed")
	}()

	cc := wire.NewConn(client)
	_, err := Query(cc, testCaps, "LOAD DATA LOCAL INFILE '/etc/passwd' INTO TABLE t", false, nil)
	if err == nil {
		t.Fatal("expected LOCAL INFILE to be rejected")
	}
}

func TestPrepareAndExecute(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		sc := wire.NewConn(server)
		if _, _, err := sc.ReadPacket(); err != nil { // COM_STMT_PREPARE
			t.Errorf("server read prepare: %v", err)
			return
		}
		w := wire.NewWriter()
		w.Int1(0x00)
		w.Int4(7) // statement id
		w.Int2(1) // num columns
		w.Int2(1) // num params
		w.Int1(0)
		w.Int2(0)
		seq, _ := sc.WritePacket(w.Bytes(), 1)
		seq = writeColumnDef(sc, seq, "?", resultset.TypeLong)
		seq = writeColumnDef(sc, seq, "id", resultset.TypeLong)

		if _, _, err := sc.ReadPacket(); err != nil { // COM_STMT_EXECUTE
			t.Errorf("server read execute: %v", err)
			return
		}
		writeOK(sc, seq, 1, 0)
	}()

	cc := wire.NewConn(client)
	stmt, err := Prepare(cc, testCaps, "SELECT id FROM t WHERE id = ?")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if stmt.StatementID != 7 || stmt.NumParams != 1 || stmt.NumColumns != 1 {
		t.Fatalf("stmt = %+v", stmt)
	}

	res, err := Execute(cc, testCaps, stmt, []any{int32(5)}, true, resultset.ZeroDateConvertToNull)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.OK == nil || res.OK.AffectedRows != 1 {
		t.Errorf("execute result = %+v", res)
	}
}

func TestPingOK(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		sc := wire.NewConn(server)
		payload, _, err := sc.ReadPacket()
		if err != nil || ID(payload[0]) != ComPing {
			t.Errorf("server: unexpected ping request")
			return
		}
		writeOK(sc, 1, 0, 0)
	}()

	cc := wire.NewConn(client)
	if err := Ping(cc, testCaps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRewriteBatchedStatements(t *testing.T) {
	got := RewriteBatchedStatements("INSERT INTO t (a, b) VALUES", []string{"(1, 2)", "(3, 4)"})
	want := "INSERT INTO t (a, b) VALUES (1, 2), (3, 4)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
