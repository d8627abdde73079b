package fixture

// Sample is the dataset written by "veridicalql init".
const Sample = `# veridicalql fixture
databases:
  - name: school
    tables:
      - name: Student
        columns:
          - {name: id, type: number}
          - {name: name, type: string}
          - {name: gender, type: string, nullable: true}
        rows:
          - {id: 1, name: Ann, gender: F}
          - {id: 2, name: Bob, gender: M}
          - {id: 3, name: Cid, gender: M}
      - name: Warning
        columns:
          - {name: studentId, type: number}
          - {name: reason, type: string}
          - {name: issued, type: Date, default: "2024-01-01"}
        rows:
          - {studentId: 2, reason: late}
          - {studentId: 2, reason: noise, issued: "2024-03-15"}

remotes:
  - name: houses
    columns:
      - {name: house, type: string}
      - {name: studentId, type: number}
    rows:
      - {house: red, studentId: 1}
      - {house: blue, studentId: 2}
`

// SampleQuery counts the warnings of every student; written next to the
// sample fixture by "veridicalql init".
const SampleQuery = `{
  "classname": "Select",
  "fields": [
    {"classname": "Field", "expr": {"classname": "Column", "table": "s", "name": "name"}},
    {"classname": "Field", "expr": {"classname": "Function", "name": "COUNT",
      "params": [{"classname": "Column", "table": "w", "name": "reason"}]}, "alias": "warnings"}
  ],
  "from": [
    {"classname": "TableRef", "table": "Student", "as": "s",
     "joins": [{"classname": "Join", "type": "LEFT",
       "table": {"classname": "TableRef", "table": "Warning", "as": "w"},
       "on": {"classname": "Binary", "op": "=",
         "left": {"classname": "Column", "table": "s", "name": "id"},
         "right": {"classname": "Column", "table": "w", "name": "studentId"}}}]}
  ],
  "group": {"classname": "Group", "exprs": [{"classname": "Column", "table": "s", "name": "name"}]},
  "order": [{"classname": "Order", "expr": {"classname": "Column", "name": "warnings"}, "desc": true}]
}
`
