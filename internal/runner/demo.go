package runner

// DemoOldCode is a Flask app with no endpoints.
const DemoOldCode = `
import Flask
app = Flask(__name__)
# No endpoints defined yet.
if __name__ == "__main__":
    app.run()
`

// DemoNewCode adds the /user-details/getUser endpoint to DemoOldCode.
const DemoNewCode = `
import Flask
from flask import jsonify

app = Flask(__name__)

# Endpoint to get user details
@app.route("/user-details/getUser")
def get_user_details():
    # In a real scenario, you'd fetch user data here.
    user_data = { "userId": 123, "fullName": "John Doe" }
    return jsonify(user_data)

if __name__ == "__main__":
    app.run()
`
